package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ngbundle/ngbundle/internal/config"
)

func TestParse(t *testing.T) {
	result, err := config.Parse([]byte(`{
		package: widgets,
		license: Apache-2.0,
		target: es2017,
		sourcemap: false,
		define: {
			ngDevMode: "false"
		},
		publish: {
			aws: {
				bucket: releases,
				prefix: libs/widgets,
				region: us-east-1
			}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	sourcemap := false
	exp := &config.Root{
		Package:    "widgets",
		SourceRoot: config.DefaultSourceRoot,
		Tsconfig:   config.DefaultTsconfig,
		Manifest:   config.DefaultManifest,
		Copy:       []string{"README.md"},
		License:    "Apache-2.0",
		Target:     "es2017",
		Sourcemap:  &sourcemap,
		Define:     map[string]string{"ngDevMode": "false"},
		Publish: &config.Publish{
			AmazonS3: &config.AmazonS3{Bucket: "releases", Prefix: "libs/widgets", Region: "us-east-1"},
		},
	}

	if diff := cmp.Diff(exp, result, cmpopts.IgnoreUnexported(config.Root{}, config.Publish{}, config.AmazonS3{})); diff != "" {
		t.Fatalf("unexpected config (-want,+got):\n%s", diff)
	}
	if result.SourcemapEnabled() {
		t.Fatal("expected source maps to be disabled")
	}
}

func TestParseDefaults(t *testing.T) {
	for _, doc := range []string{"", "{}", "package: widgets"} {
		result, err := config.Parse([]byte(doc))
		if err != nil {
			t.Fatal(err)
		}
		if result.SourceRoot != "src" || result.Tsconfig != "tsconfig.package.json" || result.License != "MIT" || result.Target != "es2015" {
			t.Fatalf("expected defaults for %q, got %+v", doc, result)
		}
		if !result.SourcemapEnabled() {
			t.Fatalf("expected source maps by default for %q", doc)
		}
	}
}

func TestValidateYAML(t *testing.T) {
	cases := []struct {
		note string
		doc  string
		exp  string
	}{
		{
			note: "unknown field",
			doc:  "packages: widgets\n",
			exp:  "additional properties 'packages' not allowed",
		},
		{
			note: "unknown target",
			doc:  "target: es3\n",
			exp:  "value must be one of",
		},
		{
			note: "wrong type",
			doc:  "copy: README.md\n",
			exp:  "got string, want array",
		},
		{
			note: "unknown publish field",
			doc:  "publish:\n  aws:\n    bucket: x\n    key: y\n",
			exp:  "additional properties 'key' not allowed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("expected error containing %q, got: %v", tc.exp, err)
			}
		})
	}
}

func TestPublishValidation(t *testing.T) {
	cases := []struct {
		note string
		doc  string
		exp  string
	}{
		{
			note: "missing bucket",
			doc:  "publish:\n  aws:\n    region: us-east-1\n",
			exp:  "bucket is required",
		},
		{
			note: "missing region",
			doc:  "publish:\n  aws:\n    bucket: releases\n",
			exp:  "region is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.exp) {
				t.Fatalf("expected error containing %q, got: %v", tc.exp, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	override := filepath.Join(dir, "override.yaml")
	write(t, base, "package: widgets\ndefine:\n  ngDevMode: \"false\"\n")
	write(t, override, "license: ISC\ndefine:\n  VERSION: \"'1.0.0'\"\n")

	result, err := config.Load(dir, []string{base, override})
	if err != nil {
		t.Fatal(err)
	}

	if result.Package != "widgets" || result.License != "ISC" {
		t.Fatalf("unexpected config: %+v", result)
	}
	exp := map[string]string{"ngDevMode": "false", "VERSION": "'1.0.0'"}
	if diff := cmp.Diff(exp, result.Define); diff != "" {
		t.Fatalf("unexpected define (-want,+got):\n%s", diff)
	}
}

func TestLoadDefaultFile(t *testing.T) {
	dir := t.TempDir()

	result, err := config.Load(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Package != "" {
		t.Fatalf("expected empty config, got %+v", result)
	}

	write(t, filepath.Join(dir, config.DefaultFile), "package: widgets\n")
	result, err = config.Load(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Package != "widgets" {
		t.Fatalf("expected config from %s, got %+v", config.DefaultFile, result)
	}
}

func TestMergeConflict(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.yaml"), "package: widgets\n")
	write(t, filepath.Join(dir, "b.yaml"), "package: gadgets\n")

	if _, err := config.Merge([]string{dir}, true); err == nil || !strings.Contains(err.Error(), "conflict for config path /package") {
		t.Fatalf("expected conflict error, got %v", err)
	}

	bs, err := config.Merge([]string{dir}, false)
	if err != nil {
		t.Fatal(err)
	}
	result, err := config.Parse(bs)
	if err != nil {
		t.Fatal(err)
	}
	if result.Package != "gadgets" {
		t.Fatalf("expected later file to win, got %q", result.Package)
	}
}

func TestReflectSchema(t *testing.T) {
	bs, err := config.ReflectSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"bundle_config", "source_root", "publish"} {
		if !strings.Contains(string(bs), `"`+field+`"`) {
			t.Errorf("expected schema to describe %q", field)
		}
	}
}

func write(t *testing.T, p, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
