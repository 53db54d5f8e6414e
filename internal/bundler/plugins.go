package bundler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	ngfs "github.com/ngbundle/ngbundle/internal/fs"
	"github.com/ngbundle/ngbundle/internal/manifest"
	"github.com/ngbundle/ngbundle/internal/tsconfig"
)

var builtinPlugins = map[string]Plugin{
	"aot":      AOTPlugin{},
	"copy":     CopyPlugin{},
	"manifest": ManifestPlugin{},
}

// AOTPlugin compiles the package sources selected by the configured tsconfig
// into its outDir before the bundle is built.
type AOTPlugin struct{}

func (AOTPlugin) Name() string { return "aot" }

func (p AOTPlugin) Apply(c *Compiler) {
	c.Hooks.TapBeforeRun(p.Name(), compileSources)
}

var defaultExcludes = []string{"**/*.d.ts", "**/*.spec.ts", "**/*.e2e.ts"}

func compileSources(ctx context.Context, c *Compiler) error {
	if c.Config.Tsconfig == "" {
		return fmt.Errorf("no tsconfig configured")
	}

	f, err := tsconfig.Load(c.Config.Tsconfig)
	if err != nil {
		return err
	}

	opts := f.Config.CompilerOptions
	if opts.OutDir == "" {
		return fmt.Errorf("tsconfig %s: compilerOptions.outDir is required", f.Path)
	}
	outDir := absPath(f.Dir(), opts.OutDir)

	target, err := parseTarget(c.Config.Target)
	if err != nil {
		return err
	}

	inputs, err := sources(f)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		c.log.Warnf("no sources matched by %s", f.Path)
		return nil
	}

	flat := c.Meta == nil || c.Meta.Flat
	root := emitRoot(inputs, f, flat)
	c.log.Debugf("compiling %d sources from %s into %s", len(inputs), root, outDir)

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}

		src, err := os.ReadFile(in)
		if err != nil {
			return err
		}

		res := api.Transform(string(src), api.TransformOptions{
			Loader:      api.LoaderTS,
			Format:      api.FormatESModule,
			Target:      target,
			Sourcefile:  in,
			TsconfigRaw: string(f.Raw),
			LogLevel:    api.LogLevelSilent,
		})
		if len(res.Errors) > 0 {
			msgs := api.FormatMessages(res.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
			return fmt.Errorf("failed to compile %s:\n%s", in, strings.Join(msgs, ""))
		}

		rel, err := filepath.Rel(root, in)
		if err != nil {
			return err
		}
		dst := filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".js")
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, res.Code, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// sources lists the absolute paths of the TypeScript files selected by the
// include and exclude globs of f.
func sources(f *tsconfig.File) ([]string, error) {
	include := f.Config.Include
	if len(include) == 0 {
		include = []string{"**/*"}
	}

	var excludes []string
	for _, ex := range f.Config.Exclude {
		ex = absPath(f.Dir(), ex)
		excludes = append(excludes, ex)
		if !hasMeta(ex) {
			excludes = append(excludes, ex+"/**")
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, inc := range include {
		base, pattern := splitGlob(absPath(f.Dir(), inc))

		excluded := slices.Clone(defaultExcludes)
		for _, ex := range excludes {
			rel, err := filepath.Rel(base, ex)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			excluded = append(excluded, filepath.ToSlash(rel))
		}

		fsys, err := ngfs.NewFilterFS(os.DirFS(base), []string{pattern}, excluded)
		if err != nil {
			return nil, err
		}
		files, err := ngfs.Files(fsys)
		if err != nil {
			return nil, err
		}
		for _, name := range files {
			if ext := filepath.Ext(name); ext != ".ts" && ext != ".tsx" {
				continue
			}
			p := filepath.Join(base, filepath.FromSlash(name))
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

// emitRoot picks the directory output paths are computed from: rootDir when
// set, the directory shared by every input of a flat package, baseUrl, or
// else the deepest common ancestor of the inputs.
//
// A package whose source root has subdirectories is staged below
// <outDir>/<dir>/src, so its output is always placed relative to baseUrl,
// even when every TypeScript input sits in one directory.
func emitRoot(inputs []string, f *tsconfig.File, flat bool) string {
	opts := f.Config.CompilerOptions
	if opts.RootDir != "" {
		return absPath(f.Dir(), opts.RootDir)
	}

	dir := filepath.Dir(inputs[0])
	if flat {
		shared := true
		for _, in := range inputs[1:] {
			if filepath.Dir(in) != dir {
				shared = false
				break
			}
		}
		if shared {
			return dir
		}
	}

	if opts.BaseURL != "" {
		return absPath(f.Dir(), opts.BaseURL)
	}

	for _, in := range inputs[1:] {
		for !strings.HasPrefix(in, dir+string(filepath.Separator)) && dir != filepath.Dir(dir) {
			dir = filepath.Dir(dir)
		}
	}
	return dir
}

// splitGlob separates the static directory prefix of an absolute glob from
// the pattern below it.
func splitGlob(pattern string) (string, string) {
	segs := strings.Split(filepath.ToSlash(pattern), "/")
	i := slices.IndexFunc(segs, hasMeta)
	if i < 0 {
		i = len(segs) - 1
	}
	base := strings.Join(segs[:i], "/")
	if base == "" {
		base = "/"
	}
	return filepath.FromSlash(base), strings.Join(segs[i:], "/")
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func absPath(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// CopyPlugin adds the configured files to the output.
type CopyPlugin struct{}

func (CopyPlugin) Name() string { return "copy" }

func (p CopyPlugin) Apply(c *Compiler) {
	c.Hooks.TapEmit(p.Name(), copyAssets)
}

func copyAssets(_ context.Context, comp *Compilation) error {
	c := comp.Compiler
	for _, pat := range c.Config.Copy {
		from := absPath(c.Config.Context, pat.From)

		fi, err := os.Stat(from)
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Warnf("%s does not exist, not copying", from)
			continue
		} else if err != nil {
			return err
		}

		if !fi.IsDir() {
			data, err := os.ReadFile(from)
			if err != nil {
				return err
			}
			comp.Emit(filepath.Join(pat.To, filepath.Base(from)), data)
			continue
		}

		files, err := ngfs.Files(os.DirFS(from))
		if err != nil {
			return err
		}
		for _, name := range files {
			data, err := os.ReadFile(filepath.Join(from, filepath.FromSlash(name)))
			if err != nil {
				return err
			}
			comp.Emit(filepath.Join(pat.To, filepath.FromSlash(name)), data)
		}
	}
	return nil
}

// ManifestPlugin writes the published package.json once the bundle is on
// disk. Manifest is the workspace manifest, relative to the workspace root
// unless absolute; package.json when empty.
type ManifestPlugin struct {
	Manifest string
}

func (ManifestPlugin) Name() string { return "manifest" }

func (p ManifestPlugin) Apply(c *Compiler) {
	c.Hooks.TapDone(p.Name(), func(s *Stats) error {
		return p.write(c, s)
	})
}

func (p ManifestPlugin) write(c *Compiler, s *Stats) error {
	meta := c.Meta

	rootManifest := absPath(meta.Root, cmp.Or(p.Manifest, manifest.FileName))
	root, err := os.ReadFile(rootManifest)
	if err != nil {
		return fmt.Errorf("failed to read workspace manifest: %w", err)
	}
	pkg, err := os.ReadFile(filepath.Join(meta.PackageDir, manifest.FileName))
	if err != nil {
		return fmt.Errorf("failed to read package manifest: %w", err)
	}

	var opts []manifest.MergeOption
	if sha, err := manifest.GitHead(meta.Root); err != nil {
		c.log.Warnf("failed to read git HEAD: %v", err)
	} else if sha != "" {
		opts = append(opts, manifest.WithGitHead(sha))
	}

	out, err := manifest.Merge(root, pkg, meta.UMD, opts...)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.OutputDir, manifest.FileName), out, 0o644)
}
