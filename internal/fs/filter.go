package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// NewFilterFS returns a view of fsys containing only the files accepted by the
// included patterns (all files if none) and not rejected by the excluded
// ones. Directories are always visible. Patterns use tsconfig glob syntax
// relative to the root of fsys: "**/" matches zero or more directories.
func NewFilterFS(fsys fs.FS, included, excluded []string) (fs.FS, error) {
	inc, err := compileGlobs(included)
	if err != nil {
		return nil, err
	}
	exc, err := compileGlobs(excluded)
	if err != nil {
		return nil, err
	}
	return &filterFS{fsys: fsys, included: inc, excluded: exc}, nil
}

type filterFS struct {
	fsys     fs.FS
	included []glob.Glob
	excluded []glob.Glob
}

func (f *filterFS) accept(name string) bool {
	if len(f.included) > 0 && !matchAny(f.included, name) {
		return false
	}
	return !matchAny(f.excluded, name)
}

func (f *filterFS) Open(name string) (fs.File, error) {
	file, err := f.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if !fi.IsDir() && !f.accept(name) {
		file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return file, nil
}

func (f *filterFS) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := fs.ReadDir(f.fsys, name)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.IsDir() || f.accept(path.Join(name, e.Name())) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Files lists every regular file visible in fsys, in lexical order.
func Files(fsys fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return files, err
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	var gs []glob.Glob
	for _, p := range patterns {
		for _, expanded := range expandDoubleStar(strings.TrimPrefix(path.Clean(p), "./")) {
			g, err := glob.Compile(expanded, '/')
			if err != nil {
				return nil, fmt.Errorf("failed to compile pattern %q: %w", p, err)
			}
			gs = append(gs, g)
		}
	}
	return gs, nil
}

// expandDoubleStar returns every variant of p in which each inner "**"
// segment is either kept or dropped, as gobwas/glob keeps the separators
// around "**" literal and so never lets it match zero directories.
func expandDoubleStar(p string) []string {
	segs := strings.Split(p, "/")
	variants := [][]string{nil}
	for i, seg := range segs {
		n := len(variants)
		for j := range n {
			v := variants[j]
			variants[j] = append(slices.Clip(v), seg)
			if seg == "**" && i < len(segs)-1 {
				variants = append(variants, slices.Clip(v))
			}
		}
	}

	out := make([]string, 0, len(variants))
	for _, v := range variants {
		if s := strings.Join(v, "/"); !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func matchAny(gs []glob.Glob, name string) bool {
	for _, g := range gs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
