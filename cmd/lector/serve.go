package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ekisa-team/lector/internal/backend"
	"github.com/ekisa-team/lector/internal/backend/command"
	openaibackend "github.com/ekisa-team/lector/internal/backend/openai"
	"github.com/ekisa-team/lector/internal/cache"
	"github.com/ekisa-team/lector/internal/config"
	"github.com/ekisa-team/lector/internal/env"
	"github.com/ekisa-team/lector/internal/export"
	"github.com/ekisa-team/lector/internal/logger"
	"github.com/ekisa-team/lector/internal/narration"
	"github.com/ekisa-team/lector/internal/segment"
	grpcserver "github.com/ekisa-team/lector/internal/server/grpc"
	httpserver "github.com/ekisa-team/lector/internal/server/http"
	"github.com/ekisa-team/lector/internal/service"
	"github.com/ekisa-team/lector/internal/telemetry"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	environment := env.FromEnv()
	slog.SetDefault(logger.New(environment))

	var current atomic.Pointer[service.Narrator]
	cfg, watcher, err := loadConfig(func(cfg *config.Config, err error) {
		if err != nil {
			slog.Error("Failed to reload config", "error", err)
			return
		}
		if n := current.Load(); n != nil {
			n.ApplyConfig(cfg)
		}
	})
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Close()
	}

	log := logger.New(environment,
		logger.WithLevel(logger.ParseLevel(cfg.Log.Level)),
		logger.WithLogToFile(cfg.Log.ToFile),
		logger.WithLogFile(cfg.Log.File),
	)
	slog.SetDefault(log)
	log.Info("Config loaded", "config", configFile, "watching", watcher != nil, "provider", cfg.Synthesis.Provider)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, metricsHandler, err := telemetry.Setup(ctx, cfg.Telemetry, string(environment), log)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	registry := backend.NewRegistry()
	defer func() {
		if err := registry.Close(); err != nil {
			log.Warn("Failed to close backends", "error", err)
		}
	}()
	b, err := newBackend(cfg)
	if err != nil {
		return err
	}
	if err := registry.Register(b); err != nil {
		return err
	}
	synth, err := registry.MustGet(backend.BackendProvider(cfg.Synthesis.Provider))
	if err != nil {
		return err
	}

	deleter := cache.NewDeleter(
		cache.WithDeleterLogger(log),
		cache.WithRemovedHook(func(_ string, err error) {
			metrics.Deleted(context.Background(), err)
		}),
	)
	store, err := cache.Open(cfg.Cache.Dir,
		cache.WithLogger(log),
		cache.WithMinBytes(cfg.Cache.MinBytes),
		cache.WithDeleter(deleter),
	)
	if err != nil {
		return fmt.Errorf("failed to open audio cache: %w", err)
	}

	orch := narration.New(synth, store, narration.Config{
		Voice:          cfg.Synthesis.Voice,
		Parameters:     cfg.Synthesis.Parameters,
		MaxConcurrency: cfg.Synthesis.MaxConcurrency,
		Timeout:        cfg.Synthesis.Timeout,
	}, narration.WithLogger(log), narration.WithMetrics(metrics))
	merger := export.New(store, cfg.Export.WaitTimeout, export.WithLogger(log), export.WithMetrics(metrics))

	narrator := service.NewNarrator(
		segment.New(cfg.Segmenter.MinLength),
		orch,
		store,
		merger,
		cfg.Cache.MaxAge,
		service.WithLogger(log),
		service.WithMetrics(metrics),
	)
	current.Store(narrator)

	errCh := make(chan error, 2)

	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		grpcAddr := net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.GRPCPort))
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		grpcSrv = grpcserver.NewServer(narrator, log)
		go func() {
			log.Info("gRPC server listening", "addr", grpcAddr)
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	addr := net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.HTTPPort))
	httpSrv := httpserver.NewServer(addr, narrator, metricsHandler)
	go func() {
		log.Info("HTTP server listening", "addr", addr, "cache", store.Dir())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case runErr = <-errCh:
		log.Error("Server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := orch.Close(shutdownCtx); err != nil {
		log.Warn("Synthesis did not finish before shutdown", "error", err)
	}
	if err := deleter.Close(shutdownCtx); err != nil {
		log.Warn("Deletion queue not drained", "error", err, "pending", deleter.Pending())
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Warn("Failed to flush telemetry", "error", err)
	}

	return runErr
}

// loadConfig watches the config file when it exists and otherwise falls back
// to defaults plus environment overrides.
func loadConfig(onReload func(*config.Config, error)) (*config.Config, *config.Watcher, error) {
	if _, err := os.Stat(configFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to stat config: %w", err)
		}
		cfg, err := config.LoadAndValidate("", schemaFile)
		if err != nil {
			return nil, nil, err
		}
		return cfg, nil, nil
	}

	watcher, err := config.NewWatcher(configFile, schemaFile, onReload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	return watcher.Snapshot(), watcher, nil
}

func newBackend(cfg *config.Config) (backend.Backend, error) {
	switch cfg.Synthesis.Provider {
	case config.ProviderCommand:
		return command.NewBackend(cfg.Synthesis.Command.Template, cfg.Synthesis.Timeout)
	case config.ProviderOpenAI:
		return openaibackend.NewBackend(openaibackend.Config{
			APIKey:  cfg.Synthesis.OpenAI.APIKey,
			BaseURL: cfg.Synthesis.OpenAI.BaseURL,
			Model:   cfg.Synthesis.OpenAI.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported synthesis provider %q", cfg.Synthesis.Provider)
	}
}
