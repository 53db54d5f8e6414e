// Package pipeline drives a library build from package metadata to the
// packaged, and optionally published, output.
package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ngbundle/ngbundle/internal/bundler"
	"github.com/ngbundle/ngbundle/internal/logging"
	"github.com/ngbundle/ngbundle/internal/manifest"
	"github.com/ngbundle/ngbundle/internal/metrics"
	"github.com/ngbundle/ngbundle/internal/packager"
	"github.com/ngbundle/ngbundle/internal/progress"
	"github.com/ngbundle/ngbundle/internal/reconcile"
	"github.com/ngbundle/ngbundle/internal/tsconfig"
)

type State int

const (
	Idle State = iota
	Resolving
	Compiling
	Reconciling
	Packaging
	Publishing
	Done
	Failed
)

var stateNames = [...]string{"idle", "resolving", "compiling", "reconciling", "packaging", "publishing", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Publisher uploads the packaged output directory.
type Publisher interface {
	Publish(ctx context.Context, dir, revision string) ([]string, error)
}

type Options struct {
	Root       string // workspace root
	SourceRoot string // directory below Root holding the packages
	Package    string // package directory name
	Tsconfig   string // base compiler configuration, relative to Root unless absolute

	// BundleConfig is anything bundler.Resolve accepts; the built-in
	// configuration built from Defaults is used when nil.
	BundleConfig any
	Defaults     bundler.Defaults

	Publisher Publisher
	Logger    *logging.Logger
	Progress  *progress.Bar
	Report    io.Writer // receives the size report when set
}

type Result struct {
	Metadata  *manifest.Metadata
	Stats     *bundler.Stats
	Output    string // dist/<dir>
	Report    *packager.Report
	Published []string
}

// Run is a single build invocation. It owns a temporary directory holding the
// derived compiler configuration and the marker naming its staging tree.
type Run struct {
	ID      string
	Marker  string
	TempDir string

	opts Options
	log  *logging.Logger

	mu      sync.Mutex
	state   State
	history []State
}

func New(opts Options) (*Run, error) {
	if opts.Package == "" {
		return nil, fmt.Errorf("package name is required")
	}

	tmp, err := os.MkdirTemp("", "ngbundle-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	id := strings.TrimPrefix(filepath.Base(tmp), "ngbundle-")

	opts.SourceRoot = cmp.Or(opts.SourceRoot, "src")
	opts.Tsconfig = cmp.Or(opts.Tsconfig, "tsconfig.package.json")

	return &Run{
		ID:      id,
		Marker:  ".tmp-" + id,
		TempDir: tmp,
		opts:    opts,
		log:     cmp.Or(opts.Logger, logging.NewDiscard()).With("package", opts.Package),
		state:   Idle,
		history: []State{Idle},
	}, nil
}

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History lists every state the run has been in, in order.
func (r *Run) History() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.history)
}

// Close removes the temporary directory.
func (r *Run) Close() error {
	return os.RemoveAll(r.TempDir)
}

func (r *Run) transition(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Debugf("%s -> %s", r.state, s)
	r.state = s
	r.history = append(r.history, s)
}

// stage runs fn in state s. A failure moves the run to Failed.
func (r *Run) stage(s State, fn func() error) error {
	r.transition(s)
	r.opts.Progress.Describe(fmt.Sprintf("%s (step %d)", s, r.opts.Progress.Current()+1))
	defer r.opts.Progress.Add(1)

	start := time.Now()
	if err := fn(); err != nil {
		metrics.BuildFailed(r.opts.Package, s.String())
		r.log.Errorf("%s failed: %v", s, err)
		r.transition(Failed)
		return fmt.Errorf("%s: %w", s, err)
	}
	metrics.StageCompleted(r.opts.Package, s.String(), start)
	return nil
}

// Execute builds the package. The staging tree is left behind when a stage
// after compilation fails.
func (r *Run) Execute(ctx context.Context) (*Result, error) {
	if r.State() != Idle {
		return nil, fmt.Errorf("run %s has already been executed", r.ID)
	}

	stages := 4
	if r.opts.Publisher != nil {
		stages++
	}
	r.opts.Progress.AddMax(stages)

	start := time.Now()
	res := &Result{}
	var derived *tsconfig.Derived

	err := r.stage(Resolving, func() (err error) {
		res.Metadata, derived, err = r.resolve()
		return err
	})
	if err != nil {
		return nil, err
	}
	meta := res.Metadata
	emitDir := filepath.Join(derived.Staging, ".emit")

	err = r.stage(Compiling, func() (err error) {
		res.Stats, err = r.compile(ctx, meta, emitDir)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(Reconciling, func() error {
		rec, err := reconcile.Reconcile(derived.OutDir, meta.Dir, emitDir)
		if err != nil {
			return err
		}
		res.Output = rec.Destination
		r.log.Debugf("moved %s to %s", rec.Source, rec.Destination)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(Packaging, func() (err error) {
		res.Report, err = r.pack(res.Output, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	if r.opts.Publisher != nil {
		err = r.stage(Publishing, func() (err error) {
			res.Published, err = r.publish(ctx, res.Output, meta)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	r.transition(Done)
	metrics.BuildSucceeded(r.opts.Package, start)
	r.log.Infof("built %s into %s in %v", meta.PackageName, res.Output, time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (r *Run) resolve() (*manifest.Metadata, *tsconfig.Derived, error) {
	meta, err := manifest.Resolve(r.opts.Root, r.opts.SourceRoot, r.opts.Package)
	if err != nil {
		return nil, nil, err
	}
	r.log.Debugf("externals of %s: %s", meta.PackageName, strings.Join(meta.Externals.Strings(), ", "))

	path := r.opts.Tsconfig
	if !filepath.IsAbs(path) {
		path = filepath.Join(meta.Root, path)
	}
	base, err := tsconfig.Load(path)
	if err != nil {
		return nil, nil, err
	}

	derived, err := tsconfig.Materialize(base, tsconfig.Options{
		Root:      meta.Root,
		SourceDir: r.opts.SourceRoot,
		Dir:       meta.Dir,
		Flat:      meta.Flat,
		Marker:    r.Marker,
		TempDir:   r.TempDir,
	})
	if err != nil {
		return nil, nil, err
	}
	meta.TsConfig = derived.Path

	return meta, derived, nil
}

func (r *Run) compile(ctx context.Context, meta *manifest.Metadata, emitDir string) (*bundler.Stats, error) {
	ref := r.opts.BundleConfig
	if ref == nil {
		ref = bundler.DefaultConfig(r.opts.Defaults)
	}

	h, err := bundler.Run(ctx, ref, meta, bundler.WithOutputDir(emitDir), bundler.WithLogger(r.log))
	if err != nil {
		return nil, err
	}

	stats, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range stats.Warnings {
		r.log.Warnf("%s", strings.TrimSpace(w))
	}
	r.log.Debugf("bundled %s in %v", stats.Name, stats.Duration().Round(time.Millisecond))
	if ext := stats.Metafile.ExternalImports(); len(ext) > 0 {
		r.log.Infof("left external: %s", strings.Join(ext, ", "))
	}
	return stats, nil
}

func (r *Run) pack(dir string, meta *manifest.Metadata) (*packager.Report, error) {
	report, err := packager.Package(dir, meta.UMD)
	if err != nil {
		return nil, err
	}

	metrics.BundleSize(r.opts.Package, "unminified", report.Unminified)
	metrics.BundleSize(r.opts.Package, "minified", report.Minified)
	metrics.BundleSize(r.opts.Package, "gzipped", report.Gzipped)

	if r.opts.Report != nil {
		if err := report.Render(r.opts.Report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (r *Run) publish(ctx context.Context, dir string, meta *manifest.Metadata) ([]string, error) {
	revision, err := manifest.GitHead(meta.Root)
	if err != nil {
		r.log.Warnf("failed to read git HEAD: %v", err)
	}

	keys, err := r.opts.Publisher.Publish(ctx, dir, revision)
	if err != nil {
		return nil, err
	}
	r.log.Infof("published %d files", len(keys))
	return keys, nil
}
