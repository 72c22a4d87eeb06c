//go:build !llama

package llama

import (
	"context"

	"chatd/internal/engine"
)

// Built reports whether this binary links llama.cpp.
const Built = false

// Runtime fetches weights but refuses to load them.
type Runtime struct {
	opts  Options
	fetch *Fetcher
}

// New returns the stub runtime.
func New(opts Options) *Runtime {
	opts = opts.withDefaults()
	return &Runtime{opts: opts, fetch: NewFetcher(opts.CacheDir)}
}

// SetHost switches the hub host used for downloads.
func (r *Runtime) SetHost(host string) { r.fetch.SetHost(host) }

// Acquire always fails with ErrUnavailable.
func (r *Runtime) Acquire(ctx context.Context, ref engine.Ref, opts engine.AcquireOptions) (*engine.Handles, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}
