package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/ngbundle/ngbundle/internal/externals"
	"github.com/ngbundle/ngbundle/internal/logging"
	"github.com/ngbundle/ngbundle/internal/manifest"
)

// Plugin taps into the compiler hooks.
type Plugin interface {
	Name() string
	Apply(c *Compiler)
}

type hook[F any] struct {
	name string
	fn   F
}

// Hooks are run in the order they were tapped.
type Hooks struct {
	beforeRun []hook[func(context.Context, *Compiler) error]
	emit      []hook[func(context.Context, *Compilation) error]
	done      []hook[func(*Stats) error]
}

// TapBeforeRun registers fn to run before the bundle is built.
func (h *Hooks) TapBeforeRun(name string, fn func(context.Context, *Compiler) error) {
	h.beforeRun = append(h.beforeRun, hook[func(context.Context, *Compiler) error]{name, fn})
}

// TapEmit registers fn to run once the bundle is built and before any asset
// is written.
func (h *Hooks) TapEmit(name string, fn func(context.Context, *Compilation) error) {
	h.emit = append(h.emit, hook[func(context.Context, *Compilation) error]{name, fn})
}

// TapDone registers fn to run after all assets have been written.
func (h *Hooks) TapDone(name string, fn func(*Stats) error) {
	h.done = append(h.done, hook[func(*Stats) error]{name, fn})
}

// Compiler runs a single bundling pass for a configuration.
type Compiler struct {
	Config    *Config
	Meta      *manifest.Metadata
	OutputDir string
	Hooks     Hooks

	log *logging.Logger
	ran atomic.Bool
}

type Option func(*Compiler)

// WithOutputDir sets the directory assets are written to.
func WithOutputDir(dir string) Option {
	return func(c *Compiler) {
		c.OutputDir = dir
	}
}

func WithLogger(log *logging.Logger) Option {
	return func(c *Compiler) {
		c.log = log
	}
}

// NewCompiler fills in defaults for cfg and applies its plugins.
func NewCompiler(cfg *Config, meta *manifest.Metadata, opts ...Option) (*Compiler, error) {
	cfg.withDefaults(meta)

	c := &Compiler{Config: cfg, Meta: meta, log: logging.NewDiscard()}
	for _, opt := range opts {
		opt(c)
	}

	if c.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if !filepath.IsAbs(c.OutputDir) {
		return nil, fmt.Errorf("output directory must be absolute: %s", c.OutputDir)
	}
	if cfg.Name == "" || cfg.Library == "" {
		return nil, fmt.Errorf("bundle name and library are required")
	}

	for _, p := range cfg.Plugins {
		c.log.Debugf("applying plugin %s", p.Name())
		p.Apply(c)
	}
	return c, nil
}

// Logger returns the logger plugins should report through.
func (c *Compiler) Logger() *logging.Logger {
	return c.log
}

// BundlePath is the output path of the entry chunk, relative to the output
// directory.
func (c *Compiler) BundlePath() string {
	return filepath.FromSlash(strings.ReplaceAll(c.Config.Filename, "[name]", c.Config.Name))
}

type BuildError struct {
	Stage    string // before-run, bundle, emit, write or done
	Hook     string
	Messages []string
	Err      error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString("build failed during ")
	b.WriteString(e.Stage)
	if e.Hook != "" {
		fmt.Fprintf(&b, " (%s)", e.Hook)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	for _, m := range e.Messages {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(m, "\n"))
	}
	return b.String()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Run performs the pass. A compiler runs at most once.
func (c *Compiler) Run(ctx context.Context) (*Stats, error) {
	if !c.ran.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("compiler has already run")
	}

	stats := &Stats{Name: c.Config.Name, OutputDir: c.OutputDir, StartTime: time.Now()}

	for _, h := range c.Hooks.beforeRun {
		c.log.Debugf("running before-run hook %s", h.name)
		if err := h.fn(ctx, c); err != nil {
			return nil, &BuildError{Stage: "before-run", Hook: h.name, Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &BuildError{Stage: "bundle", Err: err}
	}

	opts, err := c.buildOptions()
	if err != nil {
		return nil, &BuildError{Stage: "bundle", Err: err}
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, &BuildError{
			Stage:    "bundle",
			Messages: api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage}),
		}
	}
	stats.Warnings = api.FormatMessages(result.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage})

	if result.Metafile != "" {
		var mf Metafile
		if err := json.Unmarshal([]byte(result.Metafile), &mf); err != nil {
			return nil, &BuildError{Stage: "bundle", Err: fmt.Errorf("failed to parse metafile: %w", err)}
		}
		stats.Metafile = &mf
	}

	comp := &Compilation{Compiler: c, assets: map[string][]byte{}}
	for _, f := range result.OutputFiles {
		rel, err := filepath.Rel(c.OutputDir, f.Path)
		if err != nil {
			return nil, &BuildError{Stage: "bundle", Err: err}
		}
		comp.Emit(rel, f.Contents)
	}

	for _, h := range c.Hooks.emit {
		c.log.Debugf("running emit hook %s", h.name)
		if err := h.fn(ctx, comp); err != nil {
			return nil, &BuildError{Stage: "emit", Hook: h.name, Err: err}
		}
	}

	assets, err := comp.write(c.OutputDir)
	if err != nil {
		return nil, &BuildError{Stage: "write", Err: err}
	}
	stats.Assets = assets
	stats.EndTime = time.Now()

	for _, h := range c.Hooks.done {
		c.log.Debugf("running done hook %s", h.name)
		if err := h.fn(stats); err != nil {
			return nil, &BuildError{Stage: "done", Hook: h.name, Err: err}
		}
	}

	return stats, nil
}

func (c *Compiler) buildOptions() (api.BuildOptions, error) {
	cfg := c.Config

	target, err := parseTarget(cfg.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}

	sourcemap := api.SourceMapNone
	if cfg.Sourcemap {
		sourcemap = api.SourceMapExternal
	}

	banner := umdHeader(cfg.Library)
	if cfg.Banner != "" {
		banner = strings.TrimRight(cfg.Banner, "\n") + "\n" + banner
	}

	return api.BuildOptions{
		AbsWorkingDir:     cfg.Context,
		EntryPoints:       []string{cfg.Entry},
		Outfile:           filepath.Join(c.OutputDir, c.BundlePath()),
		Bundle:            true,
		Write:             false,
		Format:            api.FormatCommonJS,
		Platform:          api.PlatformBrowser,
		Target:            target,
		Tsconfig:          cfg.Tsconfig,
		ResolveExtensions: cfg.Extensions,
		Define:            cfg.Define,
		Sourcemap:         sourcemap,
		Banner:            map[string]string{"js": banner},
		Footer:            map[string]string{"js": umdFooter},
		Metafile:          true,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{externalsPlugin(cfg.Externals)},
	}, nil
}

// externalsPlugin leaves every bare import matched by set to the runtime.
func externalsPlugin(set externals.Set) api.Plugin {
	return api.Plugin{
		Name: "externals",
		Setup: func(b api.PluginBuild) {
			b.OnResolve(api.OnResolveOptions{Filter: `^[^./]`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind == api.ResolveEntryPoint || !set.Match(args.Path) {
					return api.OnResolveResult{}, nil
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

func parseTarget(s string) (api.Target, error) {
	if s == "" {
		return api.ES2015, nil
	}
	t, ok := targets[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unsupported target %q", s)
	}
	return t, nil
}

// Compilation collects the assets of a pass before they are written.
type Compilation struct {
	Compiler *Compiler
	assets   map[string][]byte
}

// Emit adds or replaces an asset. path is relative to the output directory.
func (c *Compilation) Emit(path string, data []byte) {
	c.assets[filepath.Clean(path)] = data
}

func (c *Compilation) Asset(path string) ([]byte, bool) {
	data, ok := c.assets[filepath.Clean(path)]
	return data, ok
}

func (c *Compilation) write(dir string) ([]Asset, error) {
	paths := slices.Sorted(maps.Keys(c.assets))
	assets := make([]Asset, 0, len(paths))
	for _, p := range paths {
		dst := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(dst, c.assets[p], 0o644); err != nil {
			return nil, err
		}
		assets = append(assets, Asset{Path: p, Size: int64(len(c.assets[p]))})
	}
	return assets, nil
}
