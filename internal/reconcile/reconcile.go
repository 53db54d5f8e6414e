// Package reconcile moves the staged output of a library build into its
// final location.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"

	ngfs "github.com/ngbundle/ngbundle/internal/fs"
)

type MissingOutputError struct {
	Path string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("compiled output not found at %s", e.Path)
}

// Result describes a completed reconciliation.
type Result struct {
	Source      string // output root the compiled sources were taken from
	Destination string
	Staging     string // removed staging directory
}

// Reconcile moves the compiled sources staged below outDir, followed by the
// assets in emitDir, into <outDir>/../../<dir> and removes the staging tree.
//
// The compiler places its output either directly at outDir/<dir> or, for
// packages with nested sources, at outDir/<dir>/src. If neither exists
// nothing is moved.
func Reconcile(outDir, dir, emitDir string) (*Result, error) {
	p := filepath.Clean(outDir)
	if filepath.Base(p) != dir {
		p = filepath.Join(p, dir)
	}

	var from string
	switch {
	case ngfs.IsDir(filepath.Join(p, "src")):
		from = filepath.Join(p, "src")
	case ngfs.IsDir(p):
		from = p
	default:
		return nil, &MissingOutputError{Path: p}
	}

	to := filepath.Clean(filepath.Join(p, "..", "..", dir))

	if err := ngfs.MoveContents(from, to); err != nil {
		return nil, fmt.Errorf("failed to move %s to %s: %w", from, to, err)
	}

	if emitDir != "" && ngfs.IsDir(emitDir) {
		if err := ngfs.MoveContents(emitDir, to); err != nil {
			return nil, fmt.Errorf("failed to move %s to %s: %w", emitDir, to, err)
		}
	}

	staging := filepath.Dir(p)
	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("failed to remove staging directory: %w", err)
	}

	return &Result{Source: from, Destination: to, Staging: staging}, nil
}
