// Package llama runs GGUF models in-process through go-llama.cpp. The real
// runtime is compiled with -tags=llama; default builds get a stub that
// reports the dependency as unavailable.
package llama

import (
	"errors"
	"runtime"

	"github.com/rs/zerolog"

	"chatd/internal/common/fsutil"
)

// ErrUnavailable is returned by the stub runtime.
var ErrUnavailable = errors.New("llama support not built (missing 'llama' build tag)")

// Options configures the runtime.
type Options struct {
	// CacheDir holds downloaded weights and prompt caches.
	CacheDir    string
	ContextSize int
	Threads     int
	// GPULayers offloaded when the device is not "cpu".
	GPULayers int
	Logger    zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.CacheDir == "" {
		o.CacheDir = fsutil.CacheDir()
	} else if dir, err := fsutil.ExpandHome(o.CacheDir); err == nil {
		o.CacheDir = dir
	}
	if o.ContextSize <= 0 {
		o.ContextSize = 4096
	}
	if o.Threads <= 0 {
		o.Threads = runtime.NumCPU()
	}
	if o.GPULayers <= 0 {
		o.GPULayers = 99
	}
	return o
}
