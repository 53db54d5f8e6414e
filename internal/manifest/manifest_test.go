package manifest_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/go-cmp/cmp"

	"github.com/ngbundle/ngbundle/internal/manifest"
)

const rootManifest = `{
	"name": "workspace",
	"version": "1.2.3",
	"license": "MIT",
	"main": "index.js",
	"scripts": {"build": "ngbundle build"},
	"devDependencies": {"typescript": "^5.0.0"},
	"repository": {"type": "git", "url": "https://example.com/ws.git", "directory": "."}
}`

func TestMerge(t *testing.T) {
	cases := []struct {
		note string
		pkg  string
		exp  map[string]any
	}{
		{
			note: "defaults main and strips build fields",
			pkg:  `{"name": "widgets", "peerDependencies": {"left-pad": "^1.0.0"}, "scripts": {"test": "x"}, "devOptionalDependencies": {"a": "1"}}`,
			exp: map[string]any{
				"name":             "widgets",
				"version":          "1.2.3",
				"license":          "MIT",
				"main":             "bundle/widgets.umd.js",
				"peerDependencies": map[string]any{"left-pad": "^1.0.0"},
				"repository":       map[string]any{"type": "git", "url": "https://example.com/ws.git", "directory": "."},
			},
		},
		{
			note: "explicit main kept, nested objects replaced wholesale",
			pkg:  `{"name": "widgets", "main": "lib/widgets.js", "repository": {"url": "https://example.com/widgets.git"}}`,
			exp: map[string]any{
				"name":       "widgets",
				"version":    "1.2.3",
				"license":    "MIT",
				"main":       "lib/widgets.js",
				"repository": map[string]any{"url": "https://example.com/widgets.git"},
			},
		},
		{
			note: "empty main is defaulted",
			pkg:  `{"name": "widgets", "main": ""}`,
			exp: map[string]any{
				"name":       "widgets",
				"version":    "1.2.3",
				"license":    "MIT",
				"main":       "bundle/widgets.umd.js",
				"repository": map[string]any{"type": "git", "url": "https://example.com/ws.git", "directory": "."},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			out, err := manifest.Merge([]byte(rootManifest), []byte(tc.pkg), "widgets")
			if err != nil {
				t.Fatal(err)
			}
			var act map[string]any
			if err := json.Unmarshal(out, &act); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, act); diff != "" {
				t.Fatalf("unexpected manifest (-want, +got):\n%s", diff)
			}
			for _, k := range []string{`"scripts"`, `"devDependencies"`, `"devOptionalDependencies"`} {
				if strings.Contains(string(out), k) {
					t.Fatalf("found %s in %s", k, out)
				}
			}
		})
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	pkg := []byte(`{"name": "widgets", "description": "a & b <c>", "keywords": ["x", "y"]}`)

	first, err := manifest.Merge([]byte(rootManifest), pkg, "widgets", manifest.WithGitHead("abc"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := manifest.Merge([]byte(rootManifest), pkg, "widgets", manifest.WithGitHead("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected identical output:\n%s\n%s", first, second)
	}
	if !strings.Contains(string(first), `"description": "a & b <c>"`) {
		t.Fatalf("expected unescaped description in:\n%s", first)
	}
	if !strings.Contains(string(first), `"gitHead": "abc"`) {
		t.Fatalf("expected gitHead in:\n%s", first)
	}
	if !strings.HasSuffix(string(first), "}\n") {
		t.Fatalf("expected trailing newline")
	}
}

func TestMergeKeepsMarkupCharacters(t *testing.T) {
	cases := []struct {
		note string
		pkg  string
		exp  []string
	}{
		{
			note: "top-level string",
			pkg:  `{"name": "ws", "description": "a & b <c>"}`,
			exp:  []string{`"description": "a & b <c>"`},
		},
		{
			note: "nested string",
			pkg:  `{"name": "ws", "author": {"name": "Q & A <qa@example.com>"}}`,
			exp:  []string{`"name": "Q & A <qa@example.com>"`},
		},
		{
			note: "numbers unchanged",
			pkg:  `{"name": "ws", "engines": {"x": 1.50}, "size": 12345678901234567890}`,
			exp:  []string{`"x": 1.50`, `"size": 12345678901234567890`},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			out, err := manifest.Merge([]byte(`{"name": "workspace"}`), []byte(tc.pkg), "ws")
			if err != nil {
				t.Fatal(err)
			}
			if strings.Contains(string(out), `\u00`) {
				t.Fatalf("expected no escapes in:\n%s", out)
			}
			for _, exp := range tc.exp {
				if !strings.Contains(string(out), exp) {
					t.Fatalf("expected %s in:\n%s", exp, out)
				}
			}
		})
	}
}

func TestMergeInvalidInput(t *testing.T) {
	if _, err := manifest.Merge([]byte(`[]`), []byte(`{}`), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		note    string
		files   map[string]string
		expFlat bool
		expExt  []string
	}{
		{
			note: "flat",
			files: map[string]string{
				"src/ngx-routable/package.json": `{"name": "ngx-routable", "dependencies": {"tslib": "^2"}, "peerDependencies": {"rxjs": "^7"}}`,
				"src/ngx-routable/src/index.ts": `export const x = 1;`,
			},
			expFlat: true,
			expExt:  []string{"ngx-routable", "tslib", "rxjs", "@angular/*"},
		},
		{
			note: "nested",
			files: map[string]string{
				"src/ngx-routable/package.json": `{"name": "@acme/routable"}`,
				"src/ngx-routable/src/index.ts": `export * from './lib/x';`,
				"src/ngx-routable/src/lib/x.ts": `export const x = 1;`,
			},
			expFlat: false,
			expExt:  []string{"@acme/routable", "@angular/*"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			root := t.TempDir()
			for p, c := range tc.files {
				writeFile(t, filepath.Join(root, p), c)
			}

			meta, err := manifest.Resolve(root, "src", "ngx-routable")
			if err != nil {
				t.Fatal(err)
			}
			if meta.Name != "NgxRoutable" || meta.UMD != "ngx-routable" || meta.Dir != "ngx-routable" {
				t.Fatalf("unexpected names: %+v", meta)
			}
			if meta.Flat != tc.expFlat {
				t.Fatalf("expected flat=%v", tc.expFlat)
			}
			if diff := cmp.Diff(tc.expExt, meta.Externals.Strings()); diff != "" {
				t.Fatalf("unexpected externals (-want, +got):\n%s", diff)
			}
			if exp, act := filepath.Join(root, "src", "ngx-routable", "src", "index.ts"), meta.Entry(); exp != act {
				t.Fatalf("expected entry %s, got %s", exp, act)
			}
		})
	}
}

func TestResolveMissingManifest(t *testing.T) {
	if _, err := manifest.Resolve(t.TempDir(), "src", "widgets"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTitleCamelCase(t *testing.T) {
	for in, exp := range map[string]string{
		"ngx-routable": "NgxRoutable",
		"widgets":      "Widgets",
		"my_lib.core":  "MyLibCore",
	} {
		if act := manifest.TitleCamelCase(in); act != exp {
			t.Errorf("%s: expected %s, got %s", in, exp, act)
		}
	}
}

func TestGitHead(t *testing.T) {
	dir := t.TempDir()

	sha, err := manifest.GitHead(dir)
	if err != nil || sha != "" {
		t.Fatalf("expected no head outside a repository, got %q, %v", sha, err)
	}

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "package.json"), "{}")
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("package.json"); err != nil {
		t.Fatal(err)
	}
	hash, err := wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}

	sub := filepath.Join(dir, "src", "widgets")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	sha, err = manifest.GitHead(sub)
	if err != nil {
		t.Fatal(err)
	}
	if sha != hash.String() {
		t.Fatalf("expected %s, got %s", hash, sha)
	}
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
