package bundler

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Stats describes a finished pass.
type Stats struct {
	Name      string
	OutputDir string
	StartTime time.Time
	EndTime   time.Time
	Assets    []Asset // sorted by path
	Warnings  []string
	Metafile  *Metafile
}

type Asset struct {
	Path string // relative to OutputDir
	Size int64
}

func (s *Stats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

func (s *Stats) Asset(path string) (Asset, bool) {
	path = filepath.Clean(path)
	for _, a := range s.Assets {
		if a.Path == path {
			return a, true
		}
	}
	return Asset{}, false
}

// Metafile is the subset of the bundler's metadata output the build reports
// on.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
}

type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

type MetafileOutput struct {
	Bytes      int                    `json:"bytes"`
	EntryPoint string                 `json:"entryPoint,omitempty"`
	Inputs     map[string]OutputInput `json:"inputs"`
	Imports    []MetafileImport       `json:"imports"`
}

type OutputInput struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// ExternalImports lists the distinct modules left to the runtime, in the
// order of the importing input paths. Bundler pseudo-modules such as
// <runtime> are skipped.
func (m *Metafile) ExternalImports() []string {
	if m == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, in := range slices.Sorted(maps.Keys(m.Inputs)) {
		for _, imp := range m.Inputs[in].Imports {
			if !imp.External || strings.HasPrefix(imp.Path, "<") {
				continue
			}
			if !seen[imp.Path] {
				seen[imp.Path] = true
				out = append(out, imp.Path)
			}
		}
	}
	return out
}
