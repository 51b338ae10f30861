package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/health"
	"github.com/GoCodeAlone/blueprint/logging"
	"github.com/GoCodeAlone/blueprint/metrics"
	"github.com/GoCodeAlone/blueprint/modules/builtin"
	"github.com/GoCodeAlone/blueprint/seed"
	"github.com/GoCodeAlone/blueprint/storage/memory"
	redisstore "github.com/GoCodeAlone/blueprint/storage/redis"
	"github.com/GoCodeAlone/blueprint/storage/sqlite"
)

// ErrBlueprintRequired is returned when neither --blueprint nor a seed file
// names the Blueprint to load.
var ErrBlueprintRequired = errors.New("a blueprint id is required (--blueprint or a seed file)")

// runtime is everything a command needs to work on one Blueprint.
type runtime struct {
	cfg        blueprint.Config
	logger     *logging.ZapLogger
	manager    *blueprint.ModuleManager
	registry   *prometheus.Registry
	aggregator *health.Aggregator
	closers    []func() error
}

func openRuntime(ctx context.Context, flags *globalFlags) (*runtime, error) {
	cfg, err := blueprint.LoadConfigSection(flags.configPath, flags.configSection)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var seedFile *seed.File
	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		seedFile = &f
	}

	blueprintID := flags.blueprintID
	if blueprintID == "" && seedFile != nil {
		blueprintID = seedFile.Blueprint
	}
	if blueprintID == "" {
		return nil, ErrBlueprintRequired
	}

	repo, audit, err := rt.openStorage(ctx)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.manager = blueprint.NewModuleManager(repo, audit, builtin.NewFactory(),
		blueprint.WithLogger(logger),
		blueprint.WithActor(cfg.Actor.ID, cfg.Actor.Type),
		blueprint.WithDependencyPolicy(cfg.DependencyPolicy),
		blueprint.WithMetrics(metrics.NewCollector(rt.registry)),
	)
	if err := rt.manager.LoadModules(ctx, blueprintID); err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.aggregator = health.NewAggregator()
	if err := rt.aggregator.RegisterCheck(health.NewModuleChecker(rt.manager)); err != nil {
		_ = rt.Close()
		return nil, err
	}

	// Nothing survives a restart in memory, so the seed file is the store.
	if seedFile != nil && cfg.Storage.Driver == blueprint.StorageMemory {
		rt.applySeed(ctx, *seedFile)
	}
	return rt, nil
}

func (rt *runtime) openStorage(ctx context.Context) (blueprint.DescriptorRepository, blueprint.AuditLogRepository, error) {
	var (
		repo  blueprint.DescriptorRepository
		audit blueprint.AuditLogRepository
	)
	switch rt.cfg.Storage.Driver {
	case blueprint.StorageSQLite:
		store, err := sqlite.Open(ctx, rt.cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		repo, audit = store, store.AuditLog()
	default:
		repo, audit = memory.New(), memory.NewAuditLog()
	}

	if rt.cfg.Storage.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: rt.cfg.Storage.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", rt.cfg.Storage.RedisAddr, err)
		}
		rt.closers = append(rt.closers, client.Close)
		audit = blueprint.FanoutAuditLog{audit, redisstore.NewAuditStream(client, rt.cfg.Storage.AuditStream)}
	}
	return repo, audit, nil
}

func (rt *runtime) applySeed(ctx context.Context, f seed.File) seed.Report {
	if f.Blueprint != "" && f.Blueprint != rt.manager.BlueprintID() {
		rt.logger.Warn("Seed file names another blueprint", "seed", f.Blueprint, "blueprint", rt.manager.BlueprintID())
	}
	report := seed.Apply(ctx, rt.manager, f)
	for id, err := range report.Failed {
		rt.logger.Error("Failed to apply seed module", "module", id, "error", err)
	}
	rt.logger.Info("Applied seed file", "registered", len(report.Registered),
		"updated", len(report.Updated), "unchanged", len(report.Unchanged), "failed", len(report.Failed))
	return report
}

// Close releases storage connections and flushes the logger.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	_ = rt.logger.Sync()
	return errors.Join(errs...)
}
