// Package domain defines the core interfaces and types for Sentinela.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require datasetID; datasets never see each other's rows.
type Repository interface {
	// Ledger operations
	SaveExpenses(ctx context.Context, datasetID string, expenses []*Expense) error
	ListExpenses(ctx context.Context, datasetID string) ([]*Expense, error)
	ListExpensesByEntity(ctx context.Context, datasetID string, entityID string) ([]*Expense, error)
	CountExpenses(ctx context.Context, datasetID string) (int, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, datasetID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, datasetID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, datasetID string) ([]*RuleConfig, error)

	// Assessment runs
	SaveAssessment(ctx context.Context, datasetID string, a *Assessment) error
	GetAssessment(ctx context.Context, datasetID string, assessmentID string) (*Assessment, error)
	LatestAssessment(ctx context.Context, datasetID string) (*Assessment, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDB"`
	PostgresSSLMode  string `yaml:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
