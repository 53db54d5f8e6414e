// Package tsconfig loads TypeScript compiler configurations and derives the
// per-package configuration used by a library build.
package tsconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the typed view of the tsconfig fields the build relies on. The
// full document is kept alongside so unknown options survive derivation.
type Config struct {
	Extends         string          `json:"extends,omitempty"`
	CompilerOptions CompilerOptions `json:"compilerOptions"`
	Files           []string        `json:"files,omitempty"`
	Include         []string        `json:"include,omitempty"`
	Exclude         []string        `json:"exclude,omitempty"`
}

type CompilerOptions struct {
	Target                 string              `json:"target,omitempty"`
	Module                 string              `json:"module,omitempty"`
	OutDir                 string              `json:"outDir,omitempty"`
	RootDir                string              `json:"rootDir,omitempty"`
	BaseURL                string              `json:"baseUrl,omitempty"`
	Paths                  map[string][]string `json:"paths,omitempty"`
	ExperimentalDecorators bool                `json:"experimentalDecorators,omitempty"`
	EmitDecoratorMetadata  bool                `json:"emitDecoratorMetadata,omitempty"`
}

// File is a configuration read from disk.
type File struct {
	Path   string
	Raw    json.RawMessage
	Config Config
}

func Load(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read tsconfig: %w", err)
	}

	return Parse(abs, data)
}

func Parse(path string, data []byte) (*File, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse tsconfig %s: %w", path, err)
	}
	return &File{Path: path, Raw: data, Config: config}, nil
}

// Dir returns the directory relative paths of the configuration resolve
// against.
func (f *File) Dir() string {
	return filepath.Dir(f.Path)
}
