// Package manifest reads package.json documents, derives the metadata that
// drives a library build and produces the published manifest.
package manifest

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ngbundle/ngbundle/internal/externals"
	ngfs "github.com/ngbundle/ngbundle/internal/fs"
)

const FileName = "package.json"

// Manifest holds the package.json fields the build looks at.
type Manifest struct {
	Name             string            `json:"name"`
	Main             string            `json:"main,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
}

func ReadFile(path string) (*Manifest, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Metadata describes the library being built. It is derived once per build
// from the package manifest and the on-disk layout of the package.
type Metadata struct {
	Name        string // display name, also the UMD global
	Dir         string // directory name below the source root
	UMD         string // bundle entry name
	PackageName string // manifest name
	Externals   externals.Set

	Root       string // workspace root
	PackageDir string // <root>/<src>/<dir>
	SourceRoot string // <root>/<src>/<dir>/src
	Flat       bool   // no subdirectories below SourceRoot

	// TsConfig is the path of the derived compiler configuration; empty
	// until it has been materialized.
	TsConfig string
}

// Entry is the TypeScript entry point of the library.
func (m *Metadata) Entry() string {
	return filepath.Join(m.SourceRoot, "index.ts")
}

// Resolve reads <root>/<src>/<dir>/package.json and inspects the package
// source tree.
func Resolve(root, src, dir string) (*Metadata, error) {
	if dir == "" {
		return nil, fmt.Errorf("package directory name is required")
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	pkgDir := filepath.Join(root, src, dir)
	m, err := ReadFile(filepath.Join(pkgDir, FileName))
	if err != nil {
		return nil, err
	}

	sourceRoot := filepath.Join(pkgDir, "src")
	nested, err := ngfs.HasSubdirs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect package sources: %w", err)
	}

	own := cmp.Or(m.Name, dir)

	return &Metadata{
		Name:        TitleCamelCase(dir),
		Dir:         dir,
		UMD:         dir,
		PackageName: own,
		Externals:   externals.Classify(own, slices.Sorted(maps.Keys(m.Dependencies)), slices.Sorted(maps.Keys(m.PeerDependencies))),
		Root:        root,
		PackageDir:  pkgDir,
		SourceRoot:  sourceRoot,
		Flat:        !nested,
	}, nil
}

// TitleCamelCase turns "ngx-routable" into "NgxRoutable".
func TitleCamelCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	title := cases.Title(language.Und)
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(title.String(w))
	}
	return sb.String()
}
