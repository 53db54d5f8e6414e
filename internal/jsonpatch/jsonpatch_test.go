package jsonpatch

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplyOps(t *testing.T) {
	doc := json.RawMessage(`{"compilerOptions":{"outDir":"dist"},"scripts":{"x":"y"}}`)

	out, err := ApplyOps(doc,
		Add(Pointer("compilerOptions", "outDir"), "dist/.tmp"),
		Add(Pointer("compilerOptions", "paths", "widgets/*"), []string{"widgets/src/*"}),
		Remove(Pointer("scripts")),
		Remove(Pointer("devDependencies")),
	)
	if err != nil {
		t.Fatal(err)
	}

	var act map[string]any
	if err := json.Unmarshal(out, &act); err != nil {
		t.Fatal(err)
	}

	exp := map[string]any{
		"compilerOptions": map[string]any{
			"outDir": "dist/.tmp",
			"paths": map[string]any{
				"widgets/*": []any{"widgets/src/*"},
			},
		},
	}
	if diff := cmp.Diff(exp, act); diff != "" {
		t.Fatalf("unexpected document (-want, +got):\n%s", diff)
	}
}

func TestPointerEscapes(t *testing.T) {
	if exp, act := "/paths/a~1*/b~0c", Pointer("paths", "a/*", "b~c"); exp != act {
		t.Fatalf("expected %s, got %s", exp, act)
	}
}

func TestUnsupportedOperation(t *testing.T) {
	p, err := New(Op{Op: "test", Path: "/a", Value: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(p, json.RawMessage(`{"a":1}`)); err == nil {
		t.Fatal("expected error")
	}
}
