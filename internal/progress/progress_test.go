package progress_test

import (
	"bytes"
	"testing"

	"github.com/ngbundle/ngbundle/internal/progress"
)

func TestBar(t *testing.T) {
	cases := []struct {
		note    string
		enabled bool
	}{
		{note: "visible", enabled: true},
		{note: "silent", enabled: false},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			var buf bytes.Buffer
			bar := progress.New(&buf, "building", tc.enabled)
			bar.AddMax(3)
			bar.Add(1)
			bar.Describe("packaging")
			bar.Add(2)

			if got := bar.Current(); got != 3 {
				t.Fatalf("expected 3 steps, got %d", got)
			}
			if err := bar.Finish(); err != nil {
				t.Fatal(err)
			}
			if !tc.enabled && buf.Len() != 0 {
				t.Fatalf("expected no output from a silent bar, got %q", buf.String())
			}
		})
	}
}

func TestNilBar(t *testing.T) {
	var bar *progress.Bar
	bar.AddMax(1)
	bar.Add(1)
	bar.Describe("x")
	if err := bar.Finish(); err != nil {
		t.Fatal(err)
	}
	if bar.Current() != 0 {
		t.Fatal("expected nil bar to report no progress")
	}
}
