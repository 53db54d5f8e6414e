package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ngbundle/ngbundle/internal/bundler"
	"github.com/ngbundle/ngbundle/internal/logging"
	"github.com/ngbundle/ngbundle/internal/pipeline"
	"github.com/ngbundle/ngbundle/internal/progress"
	"github.com/ngbundle/ngbundle/internal/reconcile"
)

// workspace writes a workspace holding the "widgets" package. sources are
// relative to the package source root.
func workspace(t *testing.T, sources map[string]string) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"package.json":          `{"name": "workspace", "version": "2.0.0", "scripts": {"build": "x"}}`,
		"README.md":             "# widgets\n",
		"tsconfig.package.json": `{"compilerOptions": {"target": "es2015", "outDir": "dist", "experimentalDecorators": true}}`,
		"src/widgets/package.json": `{
			"name": "widgets",
			"dependencies": {"tslib": "^2.0.0"},
			"peerDependencies": {"@angular/core": "^17.0.0"}
		}`,
	}
	for name, content := range sources {
		files["src/widgets/src/"+name] = content
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

type recordingPublisher struct {
	dir      string
	revision string
}

func (p *recordingPublisher) Publish(_ context.Context, dir, revision string) ([]string, error) {
	p.dir, p.revision = dir, revision
	return []string{"x"}, nil
}

func TestExecute(t *testing.T) {
	cases := []struct {
		note    string
		sources map[string]string
		exp     []string
	}{
		{
			note: "flat package",
			sources: map[string]string{
				"index.ts":  "import { Component } from '@angular/core';\nexport * from './chip';\nexport const core = Component;\n",
				"chip.ts":   "export const chip = 'chip';\n",
				"chip.d.ts": "export declare const chip: string;\n",
			},
			exp: []string{"chip.js", "index.js"},
		},
		{
			note: "nested package",
			sources: map[string]string{
				"index.ts":         "export * from './lib/chip';\n",
				"lib/chip.ts":      "export const chip = 'chip';\n",
				"lib/chip.spec.ts": "import { chip } from './chip';\n",
			},
			exp: []string{"index.js", "lib/chip.js"},
		},
		{
			note: "subdirectory without sources",
			sources: map[string]string{
				"index.ts":        "export * from './chip';\n",
				"chip.ts":         "export const chip = 'chip';\n",
				"assets/logo.svg": "<svg></svg>\n",
			},
			exp: []string{"chip.js", "index.js"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			root := workspace(t, tc.sources)
			publisher := &recordingPublisher{}
			var report bytes.Buffer

			run, err := pipeline.New(pipeline.Options{
				Root:      root,
				Package:   "widgets",
				Defaults:  bundler.Defaults{Sourcemap: true, Copy: []string{"README.md"}},
				Publisher: publisher,
				Report:    &report,
			})
			if err != nil {
				t.Fatal(err)
			}
			defer run.Close()

			res, err := run.Execute(context.Background())
			if err != nil {
				t.Fatal(err)
			}

			out := filepath.Join(root, "dist", "widgets")
			if res.Output != out {
				t.Fatalf("expected output %s, got %s", out, res.Output)
			}

			exp := append([]string{
				"README.md",
				"bundle/widgets.umd.js",
				"bundle/widgets.umd.js.gz",
				"bundle/widgets.umd.js.map",
				"bundle/widgets.umd.min.js",
				"package.json",
			}, tc.exp...)
			sort.Strings(exp)
			if diff := cmp.Diff(exp, files(t, out)); diff != "" {
				t.Fatalf("unexpected output (-want,+got):\n%s", diff)
			}

			entries, err := os.ReadDir(filepath.Join(root, "dist"))
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 {
				t.Fatalf("expected staging to be removed, dist holds %v", entries)
			}

			var pkg map[string]any
			bs, err := os.ReadFile(filepath.Join(out, "package.json"))
			if err != nil {
				t.Fatal(err)
			}
			if err := json.Unmarshal(bs, &pkg); err != nil {
				t.Fatal(err)
			}
			if pkg["name"] != "widgets" || pkg["version"] != "2.0.0" || pkg["main"] != "bundle/widgets.umd.js" {
				t.Fatalf("unexpected manifest: %v", pkg)
			}

			states := []pipeline.State{pipeline.Idle, pipeline.Resolving, pipeline.Compiling, pipeline.Reconciling, pipeline.Packaging, pipeline.Publishing, pipeline.Done}
			if diff := cmp.Diff(states, run.History()); diff != "" {
				t.Fatalf("unexpected states (-want,+got):\n%s", diff)
			}
			if publisher.dir != out {
				t.Fatalf("expected %s to be published, got %q", out, publisher.dir)
			}
			if !strings.Contains(strings.ToLower(report.String()), "minified") {
				t.Fatalf("expected size report, got:\n%s", report.String())
			}
		})
	}
}

func TestExecuteMissingOutput(t *testing.T) {
	root := workspace(t, map[string]string{"index.ts": "export const x = 1;\n"})

	var logs bytes.Buffer
	bar := progress.New(io.Discard, "building", false)

	// Without the AOT plugin nothing is staged for the reconciler.
	run, err := pipeline.New(pipeline.Options{
		Root:         root,
		Package:      "widgets",
		BundleConfig: &bundler.Config{},
		Logger:       logging.NewLogger(logging.Config{Level: logging.Error, Format: "json", Output: &logs}),
		Progress:     bar,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer run.Close()

	_, err = run.Execute(context.Background())

	var missing *reconcile.MissingOutputError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingOutputError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "dist", "widgets")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected nothing written to dist/widgets, got %v", err)
	}
	if run.State() != pipeline.Failed {
		t.Fatalf("expected failed state, got %v", run.State())
	}
	if bar.Current() != 3 {
		t.Fatalf("expected resolving, compiling and reconciling to be counted, got %d", bar.Current())
	}

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &rec); err != nil {
		t.Fatalf("expected a single error record, got %q: %v", logs.String(), err)
	}
	if rec["level"] != "error" || rec["package"] != "widgets" || !strings.HasPrefix(rec["message"].(string), "reconciling failed") {
		t.Fatalf("unexpected record: %v", rec)
	}

	if _, err := run.Execute(context.Background()); err == nil {
		t.Fatal("expected a second execution to fail")
	}
}

func TestExecuteConfigResolutionError(t *testing.T) {
	root := workspace(t, map[string]string{"index.ts": "export const x = 1;\n"})

	run, err := pipeline.New(pipeline.Options{Root: root, Package: "widgets", BundleConfig: 42})
	if err != nil {
		t.Fatal(err)
	}
	defer run.Close()

	_, err = run.Execute(context.Background())

	var resolutionErr *bundler.ConfigResolutionError
	if !errors.As(err, &resolutionErr) {
		t.Fatalf("expected ConfigResolutionError, got %v", err)
	}
	exp := []pipeline.State{pipeline.Idle, pipeline.Resolving, pipeline.Compiling, pipeline.Failed}
	if diff := cmp.Diff(exp, run.History()); diff != "" {
		t.Fatalf("unexpected states (-want,+got):\n%s", diff)
	}
}

func TestExecuteMissingPackage(t *testing.T) {
	root := workspace(t, nil)

	run, err := pipeline.New(pipeline.Options{Root: root, Package: "gadgets"})
	if err != nil {
		t.Fatal(err)
	}
	defer run.Close()

	if _, err := run.Execute(context.Background()); err == nil || !strings.HasPrefix(err.Error(), "resolving:") {
		t.Fatalf("expected resolving error, got %v", err)
	}
}

func TestRunsUseDistinctStaging(t *testing.T) {
	a, err := pipeline.New(pipeline.Options{Package: "widgets"})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := pipeline.New(pipeline.Options{Package: "widgets"})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if a.Marker == b.Marker || a.TempDir == b.TempDir {
		t.Fatalf("expected distinct runs, got %s and %s", a.Marker, b.Marker)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(a.TempDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temporary directory to be removed, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	if got := pipeline.Reconciling.String(); got != "reconciling" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := pipeline.State(42).String(); got != "state(42)" {
		t.Fatalf("unexpected name %q", got)
	}
}

func files(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		out = append(out, filepath.ToSlash(rel))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(out)
	return out
}
