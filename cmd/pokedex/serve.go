package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pokedex/internal/adapters/httpapi"
	"pokedex/internal/config"
	"pokedex/internal/core"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.logger, nil)
		},
	}
	d := config.Default()
	cmd.Flags().String("addr", d.HTTP.Addr, "listen address")
	cmd.Flags().String("storage", d.Storage.Driver, "storage driver (memory, file, s3, sqlite, postgres)")
	cmd.Flags().String("data-dir", d.Storage.Dir, "directory holding the JSON document for the file driver")
	cmd.Flags().String("id-policy", d.Storage.IDPolicy, "id assignment policy (max, sequence)")
	cmd.Flags().Bool("load-on-start", d.Storage.LoadOnStart, "hydrate from persisted state instead of the seed records")
	return cmd
}

// serve runs the HTTP server until ctx is done, then shuts it down within the
// configured timeout. ready, when set, receives the bound address.
func serve(ctx context.Context, cfg config.Config, logger *zap.Logger, ready func(net.Addr)) error {
	store, err := core.OpenPersistentStore(ctx, cfg.StorageOptions(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.CloseStore(store); err != nil {
			logger.Warn("close storage", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := core.NewPrometheusMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	metrics.SetRecords(len(store.ExportState().Records))
	svc := core.NewService(store, core.WithLogger(logger), core.WithMetricsRecorder(metrics))
	handler, err := httpapi.NewHandler(svc, httpapi.WithLogger(logger), httpapi.WithRegistry(registry))
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTP.Addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ErrorLog:          zap.NewStdLog(logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if ready != nil {
			ready(ln.Addr())
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
