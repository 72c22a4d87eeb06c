package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chatd/internal/config"
	"chatd/internal/controller"
	"chatd/internal/engine"
	"chatd/internal/engine/llama"
	"chatd/internal/engine/replay"
	"chatd/internal/hostprobe"
	"chatd/internal/httpapi"
	"chatd/internal/progress"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	fv := &flagValues{}
	var skipProbe, preload bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, fv)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, serveOptions{skipProbe: skipProbe, preload: preload})
		},
	}
	bindServeFlags(cmd, fv)
	cmd.Flags().BoolVar(&skipProbe, "skip-probe", false, "Use the first remote host without probing")
	cmd.Flags().BoolVar(&preload, "preload", false, "Load --default-model at startup")
	return cmd
}

type serveOptions struct {
	skipProbe bool
	preload   bool
}

// newRuntime selects the model runtime named by cfg.Engine.
func newRuntime(cfg config.Config, log zerolog.Logger) (engine.Runtime, error) {
	switch cfg.Engine {
	case "replay":
		return replay.New(), nil
	case "llama":
		if !llama.Built {
			return nil, fmt.Errorf("engine %q: %w", cfg.Engine, llama.ErrUnavailable)
		}
		return llama.New(llama.Options{
			CacheDir:    cfg.CacheDir,
			ContextSize: cfg.ContextSize,
			Threads:     cfg.Threads,
			Logger:      log,
		}), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

func serve(ctx context.Context, cfg config.Config, so serveOptions) error {
	log := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	reg, err := registry.Open(cfg.RegistryFile)
	if err != nil {
		return err
	}
	if cfg.DefaultModel != "" {
		if _, ok := reg.Lookup(cfg.DefaultModel); !ok {
			return fmt.Errorf("default model %q is not in the registry", cfg.DefaultModel)
		}
	}
	rt, err := newRuntime(cfg, log)
	if err != nil {
		return err
	}

	hub := httpapi.NewHub(cfg.EventBuffer)
	ctrl := controller.New(controller.Config{
		Registry:      reg,
		Engine:        rt,
		Publisher:     hub,
		Progress:      progress.New(),
		Logger:        log,
		DefaultDevice: cfg.DefaultDevice,
	})

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(ctrl, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("engine", cfg.Engine).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	g.Go(func() error {
		host := cfg.RemoteHosts[0]
		if !so.skipProbe {
			timeout, _ := cfg.ProbeTimeoutDuration()
			p := &hostprobe.Prober{Hosts: cfg.RemoteHosts, Path: cfg.ProbePath, Timeout: timeout, Logger: log}
			host = p.Probe(gctx)
		}
		ctrl.Announce(host)
		return startupRequests(ctrl, cfg, so.preload)
	})

	err = g.Wait()
	log.Info().Msg("chatd stopped")
	return err
}

// startupRequests configures the default model and optionally loads it.
func startupRequests(ctrl *controller.Controller, cfg config.Config, preload bool) error {
	if cfg.DefaultModel == "" {
		return nil
	}
	if err := ctrl.Send(types.Request{
		Type:     types.RequestSetConfig,
		ModelID:  cfg.DefaultModel,
		DataType: cfg.DataType,
		Device:   cfg.DefaultDevice,
	}); err != nil {
		return fmt.Errorf("configure default model: %w", err)
	}
	if preload {
		if err := ctrl.Send(types.Request{Type: types.RequestLoad}); err != nil {
			return fmt.Errorf("preload: %w", err)
		}
	}
	return nil
}
