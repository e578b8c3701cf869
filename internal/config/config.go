// Package config assembles a domain.Config from tier defaults, an optional
// YAML file and SENTINELA_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/sentinela/internal/domain"
)

// EnvPrefix prefixes every recognised environment variable.
const EnvPrefix = "SENTINELA_"

// Load builds the configuration. A .env file in the working directory is
// read first when present; path may be empty.
func Load(path string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		data = b
	}
	return Parse(data, os.Getenv)
}

// Parse applies YAML data and environment lookups onto the tier defaults.
// The tier comes from SENTINELA_TIER, then the file, then community.
func Parse(data []byte, getenv func(string) string) (*domain.Config, error) {
	var head struct {
		Tier domain.Tier `yaml:"tier"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	tier := head.Tier
	if v := getenv(EnvPrefix + "TIER"); v != "" {
		tier = domain.Tier(strings.ToLower(v))
	}

	var cfg *domain.Config
	switch tier {
	case "", domain.TierCommunity:
		cfg = domain.DefaultConfig()
	case domain.TierPro:
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Tier = tier
	if cfg.Tier == "" {
		cfg.Tier = domain.TierCommunity
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *domain.Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v := getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	if v := getenv(EnvPrefix + "DEBUG"); v != "" {
		if debug, _ := strconv.ParseBool(v); debug {
			cfg.Logging.Level = "debug"
		}
	}
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("HOST", &cfg.Server.Host)
	str("DATASET", &cfg.Analysis.DefaultDataset)
	str("SQLITE_PATH", &cfg.Repository.SQLitePath)
	str("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	str("POSTGRES_USER", &cfg.Repository.PostgresUser)
	str("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	str("POSTGRES_DB", &cfg.Repository.PostgresDB)
	str("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	str("NATS_URL", &cfg.EventBus.NATSUrl)
	str("NATS_TOKEN", &cfg.EventBus.NATSToken)

	if v := getenv(EnvPrefix + "DATASETS"); v != "" {
		cfg.Analysis.Datasets = nil
		for _, ds := range strings.Split(v, ",") {
			if ds = strings.TrimSpace(ds); ds != "" {
				cfg.Analysis.Datasets = append(cfg.Analysis.Datasets, ds)
			}
		}
	}

	for name, dst := range map[string]*int{
		"PORT":             &cfg.Server.Port,
		"POSTGRES_PORT":    &cfg.Repository.PostgresPort,
		"WORKERS":          &cfg.Analysis.Workers,
		"TOP_CORRELATIONS": &cfg.Analysis.TopCorrelations,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("repository.driver %q not supported", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.type %q not supported", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "", "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("eventBus.type %q not supported", cfg.EventBus.Type))
	}
	if cfg.Analysis.DefaultDataset == "" {
		errs = append(errs, errors.New("analysis.defaultDataset is required"))
	}
	if cfg.Analysis.Workers < 0 {
		errs = append(errs, errors.New("analysis.workers must not be negative"))
	}
	for i, r := range cfg.Rules {
		if r.ID == "" || r.Expression == "" {
			errs = append(errs, fmt.Errorf("rules[%d]: id and expression are required", i))
		}
	}
	return errors.Join(errs...)
}
