package bundler

import (
	"context"

	"github.com/ngbundle/ngbundle/internal/manifest"
)

// Handle tracks a pass started by Run.
type Handle struct {
	Compiler *Compiler

	done  chan struct{}
	stats *Stats
	err   error
}

// Run resolves ref into a configuration and starts a single pass in the
// background. Resolution errors are returned directly; build errors complete
// the handle.
func Run(ctx context.Context, ref any, meta *manifest.Metadata, opts ...Option) (*Handle, error) {
	cfg, err := Resolve(ref, meta)
	if err != nil {
		return nil, err
	}

	c, err := NewCompiler(cfg, meta, opts...)
	if err != nil {
		return nil, err
	}

	h := &Handle{Compiler: c, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.stats, h.err = c.Run(ctx)
	}()
	return h, nil
}

// Done is closed once the pass has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the pass finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*Stats, error) {
	select {
	case <-h.done:
		return h.stats, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
