package blueprint

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/blueprint/feeders"
)

// EnvPrefix is the prefix of environment variables read by LoadConfig.
const EnvPrefix = "BLUEPRINT"

// Storage drivers
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config errors
var (
	ErrConfigInvalid = errors.New("invalid configuration")
)

// Config is the process configuration of a Blueprint host.
type Config struct {
	LogLevel         string           `yaml:"logLevel" toml:"logLevel" json:"logLevel" env:"LOG_LEVEL"`
	DependencyPolicy DependencyPolicy `yaml:"dependencyPolicy" toml:"dependencyPolicy" json:"dependencyPolicy" env:"DEPENDENCY_POLICY"`
	Storage          StorageConfig    `yaml:"storage" toml:"storage" json:"storage" env:"STORAGE"`
	HTTP             HTTPConfig       `yaml:"http" toml:"http" json:"http" env:"HTTP"`
	Health           HealthConfig     `yaml:"health" toml:"health" json:"health" env:"HEALTH"`
	Actor            ActorConfig      `yaml:"actor" toml:"actor" json:"actor" env:"ACTOR"`
	SeedFile         string           `yaml:"seedFile" toml:"seedFile" json:"seedFile" env:"SEED_FILE"`
	Watch            bool             `yaml:"watch" toml:"watch" json:"watch" env:"WATCH"`
}

// StorageConfig selects the descriptor and audit stores.
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver" json:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" toml:"dsn" json:"dsn" env:"DSN"`
	// RedisAddr enables the Redis audit stream when set.
	RedisAddr   string `yaml:"redisAddr" toml:"redisAddr" json:"redisAddr" env:"REDIS_ADDR"`
	AuditStream string `yaml:"auditStream" toml:"auditStream" json:"auditStream" env:"AUDIT_STREAM"`
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr" json:"addr" env:"ADDR"`
}

// HealthConfig configures the health monitor.
type HealthConfig struct {
	Schedule string `yaml:"schedule" toml:"schedule" json:"schedule" env:"SCHEDULE"`
}

// ActorConfig is the actor recorded in audit entries.
type ActorConfig struct {
	ID   string `yaml:"id" toml:"id" json:"id" env:"ID"`
	Type string `yaml:"type" toml:"type" json:"type" env:"TYPE"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		LogLevel:         "info",
		DependencyPolicy: RequireEnabled,
		Storage: StorageConfig{
			Driver:      StorageMemory,
			AuditStream: "blueprint:audit",
		},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Health: HealthConfig{Schedule: "@every 30s"},
		Actor:  ActorConfig{ID: "system", Type: ActorTypeSystem},
	}
}

// LoadConfig builds a Config from defaults, an optional file and the
// BLUEPRINT_ environment, in that order, and validates the result.
func LoadConfig(path string) (Config, error) {
	return LoadConfigSection(path, "")
}

// LoadConfigSection is LoadConfig for a file shared with other tools: only
// the top-level section key is read from it. An empty section reads the
// whole file, and a missing one leaves the defaults in place.
func LoadConfigSection(path, section string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		feeder, err := feeders.ForFile(path)
		if err != nil {
			return Config{}, err
		}
		if section == "" {
			err = feeder.Feed(&cfg)
		} else {
			err = feeder.FeedKey(section, &cfg)
		}
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := feeders.NewPrefixedEnvFeeder(EnvPrefix).Feed(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component can use.
func (c Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logLevel %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if !c.DependencyPolicy.Valid() {
		errs = append(errs, fmt.Errorf("dependencyPolicy %q is not one of %s, %s", c.DependencyPolicy, RequireRegistered, RequireEnabled))
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of %s, %s", c.Storage.Driver, StorageMemory, StorageSQLite))
	}
	if c.Storage.RedisAddr != "" && c.Storage.AuditStream == "" {
		errs = append(errs, errors.New("storage.auditStream is required when storage.redisAddr is set"))
	}
	if c.Health.Schedule != "" {
		if _, err := cron.ParseStandard(c.Health.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("health.schedule: %w", err))
		}
	}
	if c.Watch && c.SeedFile == "" {
		errs = append(errs, errors.New("watch requires seedFile"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}
