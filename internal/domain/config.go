package domain

import "time"

// Config holds the complete Sentinela configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines which backends are used
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`
	Analysis   AnalysisConfig   `yaml:"analysis"`

	// Custom anomaly rules loaded in addition to the canonical set.
	Rules []RuleConfig `yaml:"rules"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// AnalysisConfig tunes the assessment pipeline.
type AnalysisConfig struct {
	// DefaultDataset is used when a request carries no X-Dataset-ID header.
	DefaultDataset string `yaml:"defaultDataset"`

	// Datasets the worker assesses on ledger events. Empty means DefaultDataset.
	Datasets []string `yaml:"datasets"`

	// Workers bounds phase-2 parallelism.
	Workers int `yaml:"workers"`

	// TopCorrelations is how many strong correlations to report.
	TopCorrelations int `yaml:"topCorrelations"`

	// Activity filter applied when building snapshots.
	MinActiveSpending     float64 `yaml:"minActiveSpending"`
	MinActiveTransactions int     `yaml:"minActiveTransactions"`

	// CacheTTL is how long assessments stay cached, in seconds.
	CacheTTL int `yaml:"cacheTTL"`
}

// WorkerDatasets returns the datasets to subscribe to.
func (a AnalysisConfig) WorkerDatasets() []string {
	if len(a.Datasets) > 0 {
		return a.Datasets
	}
	if a.DefaultDataset == "" {
		return nil
	}
	return []string{a.DefaultDataset}
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"serviceName"`
	ExporterType string `yaml:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `yaml:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./sentinela.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 256,
			LocalTTL:     time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Analysis: AnalysisConfig{
			DefaultDataset:        "camara",
			Workers:               8,
			TopCorrelations:       10,
			MinActiveSpending:     50000,
			MinActiveTransactions: 20,
			CacheTTL:              3600,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "sentinela",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "sentinela",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   64,
		LocalTTL:       10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
