package bundler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"text/template"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"

	"github.com/ngbundle/ngbundle/internal/externals"
	"github.com/ngbundle/ngbundle/internal/manifest"
)

// Config describes a single bundling pass.
type Config struct {
	Context    string            `json:"context,omitempty"` // directory relative paths resolve against
	Name       string            `json:"name,omitempty"`    // entry chunk name, substituted for [name]
	Entry      string            `json:"entry,omitempty"`
	Library    string            `json:"library,omitempty"` // UMD global
	Filename   string            `json:"filename,omitempty"`
	Tsconfig   string            `json:"tsconfig,omitempty"`
	Externals  externals.Set     `json:"externals,omitempty"`
	Banner     string            `json:"banner,omitempty"`
	Target     string            `json:"target,omitempty"`
	Sourcemap  bool              `json:"sourcemap,omitempty"`
	Define     map[string]string `json:"define,omitempty"`
	Extensions []string          `json:"extensions,omitempty"`
	Copy       []CopyPattern     `json:"copy,omitempty"`
	Plugins    []Plugin          `json:"plugins,omitempty"`
}

type CopyPattern struct {
	From string `json:"from"`
	To   string `json:"to,omitempty"` // relative to the output directory
}

const (
	defaultFilename = "bundle/[name].umd.js"
	defaultTarget   = "es2015"
)

// withDefaults fills the fields a configuration file may leave out from the
// package metadata.
func (c *Config) withDefaults(meta *manifest.Metadata) {
	if c.Context == "" {
		c.Context = meta.Root
	} else if !filepath.IsAbs(c.Context) {
		c.Context = filepath.Join(meta.Root, c.Context)
	}
	if c.Name == "" {
		c.Name = meta.UMD
	}
	if c.Entry == "" {
		c.Entry = meta.Entry()
	}
	if c.Library == "" {
		c.Library = meta.Name
	}
	if c.Filename == "" {
		c.Filename = defaultFilename
	}
	if c.Tsconfig == "" {
		c.Tsconfig = meta.TsConfig
	}
	if c.Externals == nil {
		c.Externals = meta.Externals
	}
	if c.Target == "" {
		c.Target = defaultTarget
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".ts", ".js"}
	}
	for _, p := range []*string{&c.Entry, &c.Tsconfig} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Context, *p)
		}
	}
}

// Defaults are the project level knobs of the built-in configuration.
type Defaults struct {
	License   string
	Target    string
	Sourcemap bool
	Define    map[string]string
	Copy      []string
	Manifest  string // workspace manifest
}

// DefaultConfig returns the built-in library configuration: AOT emit of the
// package sources, a UMD bundle of its entry point with a license banner, the
// copied assets and the published manifest.
func DefaultConfig(d Defaults) Factory {
	return func(meta *manifest.Metadata) (any, error) {
		copies := make([]CopyPattern, len(d.Copy))
		for i, from := range d.Copy {
			copies[i] = CopyPattern{From: from}
		}
		return &Config{
			Context:   meta.Root,
			Name:      meta.UMD,
			Entry:     meta.Entry(),
			Library:   meta.Name,
			Filename:  defaultFilename,
			Tsconfig:  meta.TsConfig,
			Externals: meta.Externals,
			Banner:    Banner(meta.Name, d.License, time.Now().Year()),
			Target:    d.Target,
			Sourcemap: d.Sourcemap,
			Define:    d.Define,
			Copy:      copies,
			Plugins:   []Plugin{AOTPlugin{}, CopyPlugin{}, ManifestPlugin{Manifest: d.Manifest}},
		}, nil
	}
}

// Factory builds a configuration, or anything resolvable to one, from the
// package metadata.
type Factory func(*manifest.Metadata) (any, error)

// Module wraps a configuration the way a module's default export does.
type Module struct {
	Default any
}

type ConfigResolutionError struct {
	Ref any
	Err error
}

func (e *ConfigResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve bundle configuration (%s): %v", describe(e.Ref), e.Err)
}

func (e *ConfigResolutionError) Unwrap() error {
	return e.Err
}

func describe(ref any) string {
	if s, ok := ref.(string); ok {
		return s
	}
	return fmt.Sprintf("%T", ref)
}

const maxResolveDepth = 16

// Resolve turns ref into a concrete configuration. ref may be a path to a
// configuration file, a factory, a module wrapper, a decoded document or a
// configuration; resolution repeats until a configuration is reached.
func Resolve(ref any, meta *manifest.Metadata) (*Config, error) {
	return resolve(ref, meta, 0)
}

func resolve(ref any, meta *manifest.Metadata, depth int) (*Config, error) {
	if depth > maxResolveDepth {
		return nil, &ConfigResolutionError{Ref: ref, Err: fmt.Errorf("exceeded %d resolution steps", maxResolveDepth)}
	}

	fail := func(err error) (*Config, error) {
		if _, ok := err.(*ConfigResolutionError); ok {
			return nil, err
		}
		return nil, &ConfigResolutionError{Ref: ref, Err: err}
	}

	switch v := ref.(type) {
	case nil:
		return fail(fmt.Errorf("no configuration"))
	case *Config:
		if v == nil {
			return fail(fmt.Errorf("no configuration"))
		}
		return v, nil
	case Config:
		return &v, nil
	case string:
		doc, err := loadFile(v, meta)
		if err != nil {
			return fail(err)
		}
		return resolve(doc, meta, depth+1)
	case Factory:
		return resolveFactory(v, ref, meta, depth)
	case func(*manifest.Metadata) (any, error):
		return resolveFactory(v, ref, meta, depth)
	case Module:
		return resolve(v.Default, meta, depth+1)
	case *Module:
		if v == nil {
			return fail(fmt.Errorf("no configuration"))
		}
		return resolve(v.Default, meta, depth+1)
	case map[string]any:
		if esm, _ := v["__esModule"].(bool); esm && v["default"] != nil {
			return resolve(v["default"], meta, depth+1)
		}
		cfg, err := decode(v)
		if err != nil {
			return fail(err)
		}
		return cfg, nil
	default:
		return fail(fmt.Errorf("unsupported configuration type %T", ref))
	}
}

func resolveFactory(f func(*manifest.Metadata) (any, error), ref any, meta *manifest.Metadata, depth int) (*Config, error) {
	out, err := f(meta)
	if err != nil {
		return nil, &ConfigResolutionError{Ref: ref, Err: err}
	}
	return resolve(out, meta, depth+1)
}

// loadFile renders the file as a template over the package metadata and
// decodes the result as YAML (a superset of JSON).
func loadFile(path string, meta *manifest.Metadata) (map[string]any, error) {
	if !filepath.IsAbs(path) && meta != nil {
		path = filepath.Join(meta.Root, path)
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=error").Parse(string(bs))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, meta); err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return doc, nil
}

func decode(doc map[string]any) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			externalsHook,
			pluginsHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(doc); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var (
	setType     = reflect.TypeOf(externals.Set{})
	pluginsType = reflect.TypeOf([]Plugin{})
)

func externalsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != setType {
		return data, nil
	}
	names, err := toStrings(data)
	if err != nil {
		return nil, fmt.Errorf("externals: %w", err)
	}
	return externals.New(names...)
}

// pluginsHook maps plugin names to the built-in plugins.
func pluginsHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != pluginsType {
		return data, nil
	}
	names, err := toStrings(data)
	if err != nil {
		return nil, fmt.Errorf("plugins: %w", err)
	}
	plugins := make([]Plugin, 0, len(names))
	for _, n := range names {
		p, ok := builtinPlugins[n]
		if !ok {
			return nil, fmt.Errorf("unknown plugin %q", n)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

func toStrings(data any) ([]string, error) {
	switch v := data.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", x)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", data)
}
