package repository

// Schema definitions for the Sentinela database.
// Compatible with both SQLite and PostgreSQL.

// Amounts are stored as decimal text so no cent is lost to floating point.
const schemaExpenses = `
CREATE TABLE IF NOT EXISTS expenses (
    id TEXT NOT NULL,
    dataset_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    entity_name TEXT NOT NULL,
    entity_document TEXT NOT NULL DEFAULT '',
    party TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    supplier_name TEXT NOT NULL DEFAULT '',
    supplier_document TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    amount TEXT NOT NULL,
    issued_at TIMESTAMP NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, dataset_id)
);

CREATE INDEX IF NOT EXISTS idx_expenses_dataset ON expenses(dataset_id);
CREATE INDEX IF NOT EXISTS idx_expenses_entity ON expenses(dataset_id, entity_id);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    dataset_id TEXT NOT NULL,
    label TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    min_transactions INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, dataset_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_dataset ON rule_configs(dataset_id);
`

// The full assessment is kept as JSON; the scalar columns serve listing and lookup.
const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    dataset_id TEXT NOT NULL,
    snapshot_id TEXT NOT NULL,
    input_hash TEXT NOT NULL,
    methodology_version TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    entity_count INTEGER NOT NULL,
    critical_count INTEGER NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_dataset ON assessments(dataset_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_assessments_hash ON assessments(dataset_id, input_hash);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaExpenses,
		schemaRuleConfigs,
		schemaAssessments,
	}
}
