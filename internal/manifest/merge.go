package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/ngbundle/ngbundle/internal/jsonpatch"
)

// Fields that only matter while developing the workspace.
var buildOnly = []string{"scripts", "devDependencies", "devOptionalDependencies"}

type mergeOptions struct {
	gitHead string
}

type MergeOption func(*mergeOptions)

// WithGitHead records the commit the package was built from, like npm does on
// publish.
func WithGitHead(sha string) MergeOption {
	return func(o *mergeOptions) { o.gitHead = sha }
}

// DefaultMain is the entry used when the package does not declare one.
func DefaultMain(umd string) string {
	return "bundle/" + umd + ".umd.js"
}

// Merge builds the published manifest. Top-level keys of pkg override those of
// root; nested objects are replaced, not merged.
func Merge(root, pkg []byte, umd string, opts ...MergeOption) ([]byte, error) {
	var o mergeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var rootDoc, pkgDoc map[string]json.RawMessage
	if err := json.Unmarshal(root, &rootDoc); err != nil {
		return nil, fmt.Errorf("failed to parse workspace manifest: %w", err)
	}
	if err := json.Unmarshal(pkg, &pkgDoc); err != nil {
		return nil, fmt.Errorf("failed to parse package manifest: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(rootDoc)+len(pkgDoc))
	maps.Copy(merged, rootDoc)
	maps.Copy(merged, pkgDoc)

	ops := make([]jsonpatch.Op, 0, len(buildOnly)+2)
	for _, f := range buildOnly {
		ops = append(ops, jsonpatch.Remove(jsonpatch.Pointer(f)))
	}
	// The workspace entry point never describes the library.
	if !hasValue(pkgDoc["main"]) {
		ops = append(ops, jsonpatch.Add(jsonpatch.Pointer("main"), DefaultMain(umd)))
	}
	if o.gitHead != "" {
		ops = append(ops, jsonpatch.Add(jsonpatch.Pointer("gitHead"), o.gitHead))
	}

	doc, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	doc, err = jsonpatch.ApplyOps(doc, ops...)
	if err != nil {
		return nil, fmt.Errorf("failed to patch manifest: %w", err)
	}

	return normalize(doc)
}

// hasValue mirrors a truthiness check on the raw JSON value.
func hasValue(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "false", "0":
		return false
	}
	return true
}

// normalize renders doc with sorted keys, two space indentation and no HTML
// escaping, so equal inputs always give equal bytes. Numbers keep their
// original text.
func normalize(doc []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
