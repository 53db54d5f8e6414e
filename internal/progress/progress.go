// Package progress renders build progress on a terminal.
package progress

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar counts completed steps. A nil *Bar is valid and does nothing.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar writing to w, or a silent one when enabled is false.
func New(w io.Writer, description string, enabled bool) *Bar {
	if !enabled {
		return &Bar{bar: progressbar.DefaultSilent(0, description)}
	}
	return &Bar{bar: progressbar.NewOptions(0,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)}
}

// AddMax raises the number of expected steps by n.
func (b *Bar) AddMax(n int) {
	if b == nil {
		return
	}
	b.bar.ChangeMax(b.bar.GetMax() + n)
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Describe(description string) {
	if b == nil {
		return
	}
	b.bar.Describe(description)
}

func (b *Bar) Finish() error {
	if b == nil {
		return nil
	}
	return b.bar.Finish()
}

// Current is the number of completed steps.
func (b *Bar) Current() int64 {
	if b == nil {
		return 0
	}
	return b.bar.State().CurrentNum
}
