package tsconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ngbundle/ngbundle/internal/jsonpatch"
)

// DerivedFileName is the name of the derived configuration inside the
// per-run temporary directory.
const DerivedFileName = "tsconfig.json"

type Options struct {
	Root      string // workspace root
	SourceDir string // source directory below Root holding every package, usually "src"
	Dir       string // package directory name
	Flat      bool   // package sources have no subdirectories
	Marker    string // transient staging segment appended to outDir
	TempDir   string // where the derived file is written
}

// Derived is the configuration of one build run. It lives in the run's
// temporary directory and carries absolute paths only.
type Derived struct {
	Path    string
	OutDir  string
	Staging string // <outDir>/<marker>, the root of everything the run stages
	Config  Config
	Raw     json.RawMessage
}

// Materialize patches base for the package described by opts and writes the
// result to opts.TempDir.
func Materialize(base *File, opts Options) (*Derived, error) {
	if base.Config.CompilerOptions.OutDir == "" {
		return nil, fmt.Errorf("tsconfig %s: compilerOptions.outDir is required", base.Path)
	}
	if opts.Marker == "" {
		return nil, fmt.Errorf("staging marker is required")
	}

	staging := filepath.Join(abs(base.Dir(), base.Config.CompilerOptions.OutDir), opts.Marker)
	outDir := staging
	if opts.Flat {
		outDir = filepath.Join(outDir, opts.Dir)
	}

	baseURL := filepath.Join(opts.Root, opts.SourceDir)
	sourceRoot := filepath.Join(baseURL, opts.Dir, "src")

	ops := []jsonpatch.Op{
		jsonpatch.Add(jsonpatch.Pointer("compilerOptions", "outDir"), filepath.ToSlash(outDir)),
		jsonpatch.Add(jsonpatch.Pointer("compilerOptions", "baseUrl"), filepath.ToSlash(baseURL)),
		jsonpatch.Add(jsonpatch.Pointer("compilerOptions", "paths", opts.Dir), []string{opts.Dir + "/src/index.ts"}),
		jsonpatch.Add(jsonpatch.Pointer("compilerOptions", "paths", opts.Dir+"/*"), []string{opts.Dir + "/src/*"}),
		jsonpatch.Add(jsonpatch.Pointer("include"), []string{filepath.ToSlash(sourceRoot) + "/**/*.ts"}),
		jsonpatch.Remove(jsonpatch.Pointer("files")),
	}

	// The derived file lives elsewhere, so relative references must be
	// anchored to the base configuration.
	if ext := base.Config.Extends; strings.HasPrefix(ext, ".") {
		ops = append(ops, jsonpatch.Add(jsonpatch.Pointer("extends"), filepath.ToSlash(abs(base.Dir(), ext))))
	}
	if len(base.Config.Exclude) > 0 {
		exclude := make([]string, len(base.Config.Exclude))
		for i, p := range base.Config.Exclude {
			exclude[i] = filepath.ToSlash(abs(base.Dir(), p))
		}
		ops = append(ops, jsonpatch.Add(jsonpatch.Pointer("exclude"), exclude))
	}
	if rd := base.Config.CompilerOptions.RootDir; rd != "" {
		ops = append(ops, jsonpatch.Add(jsonpatch.Pointer("compilerOptions", "rootDir"), filepath.ToSlash(abs(base.Dir(), rd))))
	}

	doc, err := jsonpatch.ApplyOps(base.Raw, ops...)
	if err != nil {
		return nil, fmt.Errorf("failed to derive tsconfig: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')

	path := filepath.Join(opts.TempDir, DerivedFileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write derived tsconfig: %w", err)
	}

	derived, err := Parse(path, buf.Bytes())
	if err != nil {
		return nil, err
	}

	return &Derived{
		Path:    path,
		OutDir:  outDir,
		Staging: staging,
		Config:  derived.Config,
		Raw:     derived.Raw,
	}, nil
}

func abs(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}
