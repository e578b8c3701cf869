package domain

// Severity of an anomaly rule.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Weight returns the severity score contribution: high=3, medium=2, low=1.
func (s Severity) Weight() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Weight() > 0
}

// RuleConfig defines an anomaly rule: a boolean CEL predicate over a profile.
type RuleConfig struct {
	ID          string `json:"id" yaml:"id"`
	DatasetID   string `json:"datasetId,omitempty" yaml:"-"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`

	// CEL expression, must return bool
	Expression string `json:"expression" yaml:"expression"`

	Severity Severity `json:"severity" yaml:"severity"`

	// The rule is only evaluated when transactionCount exceeds this.
	MinTransactions int `json:"minTransactions" yaml:"minTransactions"`

	// Whether rule is active
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// AnomalyFlag is a rule that fired for an entity.
type AnomalyFlag struct {
	RuleID      string   `json:"ruleId"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// RuleEvaluation is the registry output for one entity.
type RuleEvaluation struct {
	EntityID      string        `json:"entityId"`
	AnomalyCount  int           `json:"anomalyCount"`
	SeverityScore int           `json:"severityScore"`
	Triggered     []string      `json:"triggered"`
	Flags         []AnomalyFlag `json:"flags"`
	Errors        []string      `json:"errors,omitempty"`
}
