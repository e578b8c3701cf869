// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/sentinela/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

var _ domain.Repository = (*SQLRepository)(nil)

// New creates a new repository based on configuration and migrates it.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

func requireDataset(datasetID string) error {
	if datasetID == "" {
		return fmt.Errorf("%w: datasetID is required", ErrInvalidInput)
	}
	return nil
}

// SaveExpenses upserts ledger lines in a single transaction. Lines without an
// ID get one.
func (r *SQLRepository) SaveExpenses(ctx context.Context, datasetID string, expenses []*domain.Expense) error {
	if err := requireDataset(datasetID); err != nil {
		return err
	}
	if len(expenses) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO expenses (
			id, dataset_id, entity_id, entity_name, entity_document, party, state,
			supplier_name, supplier_document, category, amount, issued_at,
			year, month, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, dataset_id) DO UPDATE SET
			entity_id = excluded.entity_id,
			entity_name = excluded.entity_name,
			entity_document = excluded.entity_document,
			party = excluded.party,
			state = excluded.state,
			supplier_name = excluded.supplier_name,
			supplier_document = excluded.supplier_document,
			category = excluded.category,
			amount = excluded.amount,
			issued_at = excluded.issued_at,
			year = excluded.year,
			month = excluded.month
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range expenses {
		if e == nil {
			continue
		}
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.DatasetID = datasetID

		issued := sql.NullTime{Time: e.IssuedAt, Valid: e.HasDate()}
		if _, err := stmt.ExecContext(ctx,
			e.ID, datasetID, e.EntityID, e.EntityName, e.EntityDocument, e.Party, e.State,
			e.SupplierName, e.SupplierDocument, e.Category, e.Amount.String(), issued,
			e.Year, e.Month, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("save expense %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

const expenseColumns = `
	id, dataset_id, entity_id, entity_name, entity_document, party, state,
	supplier_name, supplier_document, category, amount, issued_at,
	year, month, created_at`

// ListExpenses returns the full ledger of a dataset.
func (r *SQLRepository) ListExpenses(ctx context.Context, datasetID string) ([]*domain.Expense, error) {
	if err := requireDataset(datasetID); err != nil {
		return nil, err
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE dataset_id = ? ORDER BY entity_id, id`
	return r.queryExpenses(ctx, query, datasetID)
}

// ListExpensesByEntity returns one legislator's ledger lines.
func (r *SQLRepository) ListExpensesByEntity(ctx context.Context, datasetID string, entityID string) ([]*domain.Expense, error) {
	if err := requireDataset(datasetID); err != nil {
		return nil, err
	}
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE dataset_id = ? AND entity_id = ? ORDER BY id`
	return r.queryExpenses(ctx, query, datasetID, entityID)
}

// CountExpenses returns the ledger size of a dataset.
func (r *SQLRepository) CountExpenses(ctx context.Context, datasetID string) (int, error) {
	if err := requireDataset(datasetID); err != nil {
		return 0, err
	}
	var n int
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM expenses WHERE dataset_id = ?`), datasetID).Scan(&n)
	return n, err
}

func (r *SQLRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]*domain.Expense, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Expense
	for rows.Next() {
		var e domain.Expense
		var issued sql.NullTime
		if err := rows.Scan(
			&e.ID, &e.DatasetID, &e.EntityID, &e.EntityName, &e.EntityDocument, &e.Party, &e.State,
			&e.SupplierName, &e.SupplierDocument, &e.Category, &e.Amount, &issued,
			&e.Year, &e.Month, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if issued.Valid {
			e.IssuedAt = issued.Time.UTC()
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// SaveRuleConfig stores a rule configuration version.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, datasetID string, rule *domain.RuleConfig) error {
	if err := requireDataset(datasetID); err != nil {
		return err
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, dataset_id, label, description, version, expression, severity,
			min_transactions, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, dataset_id, version) DO UPDATE SET
			label = excluded.label,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			min_transactions = excluded.min_transactions,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, datasetID, rule.Label, rule.Description, rule.Version, rule.Expression,
		string(rule.Severity), rule.MinTransactions, enabled, now, now,
	)
	return err
}

const ruleColumns = `id, dataset_id, label, description, version, expression, severity, min_transactions, enabled`

func scanRule(row interface{ Scan(...any) error }) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var description sql.NullString
	var severity string
	var enabled int
	if err := row.Scan(
		&cfg.ID, &cfg.DatasetID, &cfg.Label, &description, &cfg.Version,
		&cfg.Expression, &severity, &cfg.MinTransactions, &enabled,
	); err != nil {
		return nil, err
	}
	cfg.Description = description.String
	cfg.Severity = domain.Severity(severity)
	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// GetRuleConfig returns the newest version of a rule, enabled or not.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, datasetID string, ruleID string) (*domain.RuleConfig, error) {
	if err := requireDataset(datasetID); err != nil {
		return nil, err
	}
	query := `SELECT ` + ruleColumns + ` FROM rule_configs WHERE dataset_id = ? AND id = ?`
	configs, err := r.queryRules(ctx, query, datasetID, ruleID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, ErrNotFound
	}
	return configs[0], nil
}

// ListRuleConfigs returns the newest version of every stored rule, ordered
// by id. Disabled rules are included so they can switch off built-ins.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, datasetID string) ([]*domain.RuleConfig, error) {
	if err := requireDataset(datasetID); err != nil {
		return nil, err
	}
	query := `SELECT ` + ruleColumns + ` FROM rule_configs WHERE dataset_id = ?`
	return r.queryRules(ctx, query, datasetID)
}

func (r *SQLRepository) queryRules(ctx context.Context, query string, args ...any) ([]*domain.RuleConfig, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := make(map[string]*domain.RuleConfig)
	var ids []string
	for rows.Next() {
		cfg, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		cur, seen := latest[cfg.ID]
		if !seen {
			ids = append(ids, cfg.ID)
		}
		if !seen || compareVersions(cfg.Version, cur.Version) > 0 {
			latest[cfg.ID] = cfg
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.RuleConfig, 0, len(ids))
	for _, id := range ids {
		out = append(out, latest[id])
	}
	sortRules(out)
	return out, nil
}

// SaveAssessment persists a completed assessment.
func (r *SQLRepository) SaveAssessment(ctx context.Context, datasetID string, a *domain.Assessment) error {
	if err := requireDataset(datasetID); err != nil {
		return err
	}
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: assessment id is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, dataset_id, snapshot_id, input_hash, methodology_version,
			timestamp, entity_count, critical_count, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, datasetID, a.SnapshotID, a.InputHash, a.MethodologyVersion,
		a.Timestamp.UTC(), len(a.Entities), a.LevelCounts[domain.LevelCritical], string(payload),
	)
	return err
}

// GetAssessment returns an assessment by ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, datasetID string, assessmentID string) (*domain.Assessment, error) {
	if err := requireDataset(datasetID); err != nil {
		return nil, err
	}
	return r.queryAssessment(ctx, `SELECT payload FROM assessments WHERE dataset_id = ? AND id = ?`, datasetID, assessmentID)
}

// LatestAssessment returns the most recent assessment of a dataset.
func (r *SQLRepository) LatestAssessment(ctx context.Context, datasetID string) (*domain.Assessment, error) {
	if err := requireDataset(datasetID); err != nil {
		return nil, err
	}
	return r.queryAssessment(ctx,
		`SELECT payload FROM assessments WHERE dataset_id = ? ORDER BY timestamp DESC LIMIT 1`, datasetID)
}

func (r *SQLRepository) queryAssessment(ctx context.Context, query string, args ...any) (*domain.Assessment, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var a domain.Assessment
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("failed to parse assessment: %w", err)
	}
	return &a, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
