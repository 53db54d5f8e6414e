// Package externals decides which module specifiers a bundle must leave to
// the runtime instead of inlining them.
package externals

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// FrameworkNamespace is always external, whatever the manifest declares.
const FrameworkNamespace = "@angular/"

// Pattern matches a module specifier. A module pattern for "dep" matches "dep"
// and "dep/<anything>". A namespace pattern (trailing slash) matches every
// module below the namespace.
type Pattern struct {
	name string
	g    glob.Glob
}

func NewPattern(name string) (Pattern, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	if name == "" || name == "/" {
		return Pattern{}, fmt.Errorf("empty module name")
	}

	var expr string
	if strings.HasSuffix(name, "/") {
		expr = glob.QuoteMeta(name) + "**"
	} else {
		q := glob.QuoteMeta(name)
		expr = "{" + q + "," + q + "/**}"
	}

	g, err := glob.Compile(expr, '/')
	if err != nil {
		return Pattern{}, fmt.Errorf("failed to compile external pattern for %q: %w", name, err)
	}
	return Pattern{name: name, g: g}, nil
}

func (p Pattern) Name() string { return p.name }

func (p Pattern) Namespace() bool { return strings.HasSuffix(p.name, "/") }

func (p Pattern) Match(module string) bool {
	return p.g != nil && p.g.Match(module)
}

func (p Pattern) String() string {
	if p.Namespace() {
		return p.name + "*"
	}
	return p.name
}

// Set is an ordered, duplicate free collection of patterns.
type Set []Pattern

// Classify returns the externals for a package: its own name, every runtime
// and peer dependency, and the framework namespace.
func Classify(own string, deps, peers []string) Set {
	names := make([]string, 0, len(deps)+len(peers)+2)
	names = append(names, own)
	names = append(names, deps...)
	names = append(names, peers...)
	names = append(names, FrameworkNamespace)

	var s Set
	for _, n := range names {
		// empty names cannot come from manifest keys, skip them
		s, _ = s.Add(n)
	}
	return s
}

func New(names ...string) (Set, error) {
	var s Set
	for _, n := range names {
		var err error
		if s, err = s.Add(n); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s Set) Add(name string) (Set, error) {
	p, err := NewPattern(name)
	if err != nil {
		return s, err
	}
	if s.Contains(p.name) {
		return s, nil
	}
	return append(s, p), nil
}

func (s Set) Contains(name string) bool {
	return slices.ContainsFunc(s, func(p Pattern) bool { return p.name == name })
}

// Match reports whether module must not be bundled.
func (s Set) Match(module string) bool {
	return slices.ContainsFunc(s, func(p Pattern) bool { return p.Match(module) })
}

func (s Set) Strings() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.String()
	}
	return out
}
