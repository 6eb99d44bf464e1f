// Command hadilab serves the hypothesis lifecycle API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hadilab/internal/adapters/httpapi"
	"hadilab/internal/blob"
	"hadilab/internal/config"
	"hadilab/internal/core"
	"hadilab/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "hadilab:", err)
		stop()
		exitFunc(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := core.OpenPersistentStore(cfg.Storage, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := core.CloseStore(store); err != nil {
			logger.Error("close store", "error", err)
		}
	}()
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithPolicy(cfg.Policy),
		core.WithBlobStore(blobs),
		core.WithMetricsRecorder(metrics),
	)
	if err := bootstrapAdmin(ctx, svc, cfg.BootstrapAdmin, logger); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewHandler(svc, httpapi.WithGatherer(reg), httpapi.WithHandlerLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "storage", string(cfg.Storage.Driver), "blob", string(blobs.Driver()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func bootstrapAdmin(ctx context.Context, svc *core.Service, id string, logger *slog.Logger) error {
	if id == "" {
		return nil
	}
	user, created, err := svc.EnsureUser(ctx, core.User{Base: core.Base{ID: id}, Name: id, Role: domain.RoleAdmin})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info("bootstrap admin created", "user", user.ID)
	}
	return nil
}
