// Package packager produces the minified and compressed variants of a UMD
// bundle.
package packager

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"
	"github.com/olekukonko/tablewriter"
)

// BundleDir is the directory below the package output holding the bundles.
const BundleDir = "bundle"

type PackagingError struct {
	Path string
	Err  error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("failed to package %s: %v", e.Path, e.Err)
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}

// Report summarizes the sizes of the bundle variants. Ratios are the share of
// the reference size retained, between 0 and 1.
type Report struct {
	Bundle     string
	Unminified int64
	Minified   int64
	Gzipped    int64

	MinifiedRatio        float64 // minified / unminified
	GzippedRatio         float64 // gzipped / unminified
	GzippedMinifiedRatio float64 // gzipped / minified
}

func newReport(bundle string, unmin, min, gz int64) *Report {
	return &Report{
		Bundle:               bundle,
		Unminified:           unmin,
		Minified:             min,
		Gzipped:              gz,
		MinifiedRatio:        ratio(min, unmin),
		GzippedRatio:         ratio(gz, unmin),
		GzippedMinifiedRatio: ratio(gz, min),
	}
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Package minifies and compresses <distDir>/bundle/<umd>.umd.js, writing
// <umd>.umd.min.js and <umd>.umd.js.gz next to it.
func Package(distDir, umd string) (*Report, error) {
	dir := filepath.Join(distDir, BundleDir)
	src := filepath.Join(dir, umd+".umd.js")

	code, err := os.ReadFile(src)
	if err != nil {
		return nil, &PackagingError{Path: src, Err: err}
	}

	minified, err := Minify(src, code)
	if err != nil {
		return nil, &PackagingError{Path: src, Err: err}
	}

	gzipped, err := Gzip(minified)
	if err != nil {
		return nil, &PackagingError{Path: src, Err: err}
	}

	for name, data := range map[string][]byte{
		umd + ".umd.min.js": minified,
		umd + ".umd.js.gz":  gzipped,
	} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return nil, &PackagingError{Path: p, Err: err}
		}
	}

	return newReport(src, int64(len(code)), int64(len(minified)), int64(len(gzipped))), nil
}

// Minify compresses whitespace, identifiers and syntax of a script.
func Minify(name string, code []byte) ([]byte, error) {
	res := api.Transform(string(code), api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        name,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LegalComments:     api.LegalCommentsNone,
		LogLevel:          api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		msgs := api.FormatMessages(res.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, fmt.Errorf("minification failed:\n%s", strings.Join(msgs, ""))
	}
	return res.Code, nil
}

func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render writes the report as a table.
func (r *Report) Render(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.Header("Variant", "Size", "Retained")

	rows := [][]string{
		{"unminified", humanize.Bytes(uint64(r.Unminified)), ""},
		{"minified", humanize.Bytes(uint64(r.Minified)), percent(r.MinifiedRatio) + " of unminified"},
		{"gzipped", humanize.Bytes(uint64(r.Gzipped)), percent(r.GzippedRatio) + " of unminified"},
		{"gzipped", "", percent(r.GzippedMinifiedRatio) + " of minified"},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func percent(r float64) string {
	return humanize.FtoaWithDigits(r*100, 2) + "%"
}
