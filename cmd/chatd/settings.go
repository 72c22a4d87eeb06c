package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatd/internal/config"
	"chatd/internal/hostprobe"
)

// Defaults applied after the config file and flags are merged.
const (
	defaultAddr        = ":8080"
	defaultEngine      = "replay"
	defaultEventBuffer = 256
)

// flagValues mirrors the config file fields that can be set on the command
// line. CSV flags are split after parsing.
type flagValues struct {
	config.Config
	remoteHosts string
	corsOrigins string
	corsMethods string
	corsHeaders string
}

func bindServeFlags(cmd *cobra.Command, fv *flagValues) {
	addr := defaultAddr
	if v := os.Getenv("CHATD_ADDR"); v != "" {
		addr = v
	}
	f := cmd.Flags()
	f.StringVar(&fv.Addr, "addr", addr, "HTTP listen address, e.g. :8080")
	f.StringVar(&fv.Engine, "engine", defaultEngine, "Model runtime: replay|llama")
	f.StringVar(&fv.CacheDir, "cache-dir", "", "Directory for downloaded weights (llama engine)")
	f.IntVar(&fv.Threads, "threads", 0, "Inference threads (0 = all CPUs)")
	f.IntVar(&fv.ContextSize, "context-size", 0, "Model context length (0 = 4096)")
	f.StringVar(&fv.DefaultModel, "default-model", "", "Model id configured at startup")
	f.StringVar(&fv.DefaultDevice, "default-device", "", "Device used when a setConfig omits one")
	f.StringVar(&fv.DataType, "data-type", "", "Data type used with --default-model")
	f.StringVar(&fv.RegistryFile, "registry", "", "Extra model descriptors (.yaml, .json or .toml)")
	f.StringVar(&fv.remoteHosts, "remote-hosts", "", "Comma separated download hosts in preference order")
	f.StringVar(&fv.ProbePath, "probe-path", "", "Path requested when probing hosts")
	f.StringVar(&fv.ProbeTimeout, "probe-timeout", "", "Per-host probe timeout, e.g. 3s")
	f.BoolVar(&fv.CORS.Enabled, "cors", false, "Enable CORS for browser hosts")
	f.StringVar(&fv.corsOrigins, "cors-origins", "", "Comma separated allowed origins")
	f.StringVar(&fv.corsMethods, "cors-methods", "GET,POST,OPTIONS", "Comma separated allowed methods")
	f.StringVar(&fv.corsHeaders, "cors-headers", "Content-Type", "Comma separated allowed headers")
	f.Int64Var(&fv.MaxBodyBytes, "max-body-bytes", 0, "Maximum request body size (0 = 1 MiB)")
	f.IntVar(&fv.EventBuffer, "event-buffer", 0, "Per-subscriber event buffer")
}

// resolveConfig loads the config file, if any, and applies the flags the user
// set explicitly on top of it.
func resolveConfig(cmd *cobra.Command, opts *options, fv *flagValues) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		c, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("addr", func() { cfg.Addr = fv.Addr })
	set("engine", func() { cfg.Engine = fv.Engine })
	set("cache-dir", func() { cfg.CacheDir = fv.CacheDir })
	set("threads", func() { cfg.Threads = fv.Threads })
	set("context-size", func() { cfg.ContextSize = fv.ContextSize })
	set("default-model", func() { cfg.DefaultModel = fv.DefaultModel })
	set("default-device", func() { cfg.DefaultDevice = fv.DefaultDevice })
	set("data-type", func() { cfg.DataType = fv.DataType })
	set("registry", func() { cfg.RegistryFile = fv.RegistryFile })
	set("remote-hosts", func() { cfg.RemoteHosts = splitCSV(fv.remoteHosts) })
	set("probe-path", func() { cfg.ProbePath = fv.ProbePath })
	set("probe-timeout", func() { cfg.ProbeTimeout = fv.ProbeTimeout })
	set("cors", func() { cfg.CORS.Enabled = fv.CORS.Enabled })
	set("cors-origins", func() { cfg.CORS.Origins = splitCSV(fv.corsOrigins) })
	set("cors-methods", func() { cfg.CORS.Methods = splitCSV(fv.corsMethods) })
	set("cors-headers", func() { cfg.CORS.Headers = splitCSV(fv.corsHeaders) })
	set("max-body-bytes", func() { cfg.MaxBodyBytes = fv.MaxBodyBytes })
	set("event-buffer", func() { cfg.EventBuffer = fv.EventBuffer })
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}

	if cfg.Addr == "" {
		cfg.Addr = fv.Addr
	}
	if cfg.Engine == "" {
		cfg.Engine = defaultEngine
	}
	if len(cfg.RemoteHosts) == 0 {
		cfg.RemoteHosts = append([]string(nil), hostprobe.DefaultHosts...)
	}
	if len(cfg.CORS.Methods) == 0 {
		cfg.CORS.Methods = splitCSV(fv.corsMethods)
	}
	if len(cfg.CORS.Headers) == 0 {
		cfg.CORS.Headers = splitCSV(fv.corsHeaders)
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if _, err := cfg.ProbeTimeoutDuration(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
