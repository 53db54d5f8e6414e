package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// Defaults for fields left out of the project configuration.
const (
	DefaultFile       = "ngbundle.yaml"
	DefaultSourceRoot = "src"
	DefaultTsconfig   = "tsconfig.package.json"
	DefaultManifest   = "package.json"
	DefaultLicense    = "MIT"
	DefaultTarget     = "es2015"
)

// Root is the project configuration of a library build.
type Root struct {
	Package      string            `json:"package,omitempty"`       // directory name below the source root
	SourceRoot   string            `json:"source_root,omitempty"`   // relative to the workspace
	Tsconfig     string            `json:"tsconfig,omitempty"`      // base compiler configuration
	Manifest     string            `json:"manifest,omitempty"`      // workspace manifest
	BundleConfig string            `json:"bundle_config,omitempty"` // bundle configuration file replacing the built-in one
	Copy         []string          `json:"copy,omitempty"`
	License      string            `json:"license,omitempty"`
	Target       string            `json:"target,omitempty" enum:"es5,es2015,es2016,es2017,es2018,es2019,es2020,es2021,es2022,esnext"`
	Sourcemap    *bool             `json:"sourcemap,omitempty"`
	Define       map[string]string `json:"define,omitempty"`
	Publish      *Publish          `json:"publish,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// UnmarshalYAML validates the decoded publish target.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) unmarshal() error {
	return r.Publish.validate()
}

// SetDefaults fills every unset field with its default.
func (r *Root) SetDefaults() {
	r.SourceRoot = cmp.Or(r.SourceRoot, DefaultSourceRoot)
	r.Tsconfig = cmp.Or(r.Tsconfig, DefaultTsconfig)
	r.Manifest = cmp.Or(r.Manifest, DefaultManifest)
	r.License = cmp.Or(r.License, DefaultLicense)
	r.Target = cmp.Or(r.Target, DefaultTarget)
	if r.Copy == nil {
		r.Copy = []string{"README.md"}
	}
	if r.Sourcemap == nil {
		enabled := true
		r.Sourcemap = &enabled
	}
}

// SourcemapEnabled reports whether an external source map is emitted.
func (r *Root) SourcemapEnabled() bool {
	return r.Sourcemap == nil || *r.Sourcemap
}

// Publish configures where the packaged library is uploaded to.
type Publish struct {
	AmazonS3 *AmazonS3 `json:"aws,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (p *Publish) validate() error {
	if p == nil {
		return nil
	}
	return p.AmazonS3.validate()
}

// AmazonS3 defines an Amazon S3-compatible bucket the package output is copied
// to, one object per file below Prefix.
type AmazonS3 struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`
	URL    string `json:"url,omitempty"` // for test purposes

	_ struct{} `additionalProperties:"false"`
}

func (a *AmazonS3) validate() error {
	if a == nil {
		return nil
	}

	if a.Bucket == "" {
		return errors.New("amazon s3 bucket is required")
	}

	if a.Region == "" {
		return errors.New("amazon s3 region is required")
	}

	return nil
}

func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}
	if config == nil {
		return nil
	}

	return rootSchema.Validate(config)
}

func ParseFile(filename string) (root *Root, err error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	return Parse(bs)
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	root.SetDefaults()

	return &root, nil
}

// Load merges the given configuration files and parses the result. Without
// files, DefaultFile in dir is used when it exists.
func Load(dir string, files []string) (*Root, error) {
	if len(files) == 0 {
		def := filepath.Join(dir, DefaultFile)
		if _, err := os.Stat(def); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Parse(nil)
			}
			return nil, err
		}
		files = []string{def}
	}

	bs, err := Merge(files, false)
	if err != nil {
		return nil, err
	}
	return Parse(bs)
}
