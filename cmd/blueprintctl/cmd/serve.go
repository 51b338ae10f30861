package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/health"
	"github.com/GoCodeAlone/blueprint/httpapi"
	"github.com/GoCodeAlone/blueprint/seed"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Activate the Blueprint and serve the admin API",
		Long: `Serve loads the Blueprint, applies the seed file, activates every enabled
module in dependency order and serves the admin API until interrupted.

With watch enabled, edits to the seed file are applied and activated live.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags)
		},
	}
}

func runServe(ctx context.Context, flags *globalFlags) error {
	rt, err := openRuntime(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if rt.cfg.SeedFile != "" && rt.cfg.Storage.Driver != blueprint.StorageMemory {
		f, err := seed.Load(rt.cfg.SeedFile)
		if err != nil {
			return err
		}
		rt.applySeed(ctx, f)
	}

	report, err := rt.manager.Activate(ctx)
	if err != nil {
		return fmt.Errorf("failed to activate blueprint: %w", err)
	}
	for _, id := range report.FailedIDs() {
		rt.logger.Error("Module failed to activate", "module", id, "error", report.Failed[id])
	}

	monitor := health.NewMonitor(rt.aggregator, rt.cfg.Health.Schedule, rt.logger)
	monitor.OnChange(func(_ context.Context, _, current *health.AggregatedStatus) {
		for name, result := range current.CheckResults {
			if result.Status != health.StatusHealthy {
				rt.logger.Warn("Health check not passing", "check", name, "status", result.Status, "message", result.Message)
			}
		}
	})
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	if rt.cfg.Watch {
		go func() {
			err := seed.Watch(ctx, rt.cfg.SeedFile, seed.DefaultDebounce, rt.logger, func(ctx context.Context) {
				f, err := seed.Load(rt.cfg.SeedFile)
				if err != nil {
					rt.logger.Error("Failed to reload seed file", "error", err)
					return
				}
				rt.applySeed(ctx, f)
				if _, err := rt.manager.Activate(ctx); err != nil {
					rt.logger.Error("Failed to activate after seed change", "error", err)
				}
			})
			if err != nil {
				rt.logger.Error("Seed watcher stopped", "error", err)
			}
		}()
	}

	api := httpapi.NewServer(rt.manager,
		httpapi.WithHealth(rt.aggregator),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})),
		httpapi.WithLogger(rt.logger),
	)
	srv := &http.Server{
		Addr:              rt.cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("Serving admin API", "addr", srv.Addr, "blueprint", rt.manager.BlueprintID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Warn("HTTP shutdown did not complete", "error", err)
	}
	if err := rt.manager.Deactivate(shutdownCtx); err != nil {
		rt.logger.Error("Failed to deactivate blueprint", "error", err)
	}
	rt.logger.Info("Stopped")
	return serveErr
}
