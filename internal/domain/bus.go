package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, datasetID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, datasetID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, datasetID string, topic string, payload []byte) ([]byte, error)

	// Reply answers a message received through Request.
	Reply(ctx context.Context, msg *Message, payload []byte) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	DatasetID string            `json:"datasetId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// MetadataReplyTo carries the reply address of a request message.
const MetadataReplyTo = "reply-to"

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"natsUrl"`
	NATSToken         string `yaml:"natsToken"`
	NATSMaxReconnects int    `yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"natsReconnectWait"` // seconds
}

// Topic names for the assessment pipeline.
const (
	TopicLedgerIngested   = "sentinela.ledger.ingested"
	TopicSnapshotRefresh  = "sentinela.snapshot.refresh"
	TopicSnapshotAssessed = "sentinela.snapshot.assessed"
	TopicEntityFlagged    = "sentinela.entity.flagged"
)

// LedgerIngestedEvent is published after expenses are persisted.
type LedgerIngestedEvent struct {
	DatasetID string `json:"datasetId"`
	Count     int    `json:"count"`
}

// SnapshotAssessedEvent is published after an assessment is saved.
type SnapshotAssessedEvent struct {
	AssessmentID string         `json:"assessmentId"`
	InputHash    string         `json:"inputHash"`
	Entities     int            `json:"entities"`
	LevelCounts  map[string]int `json:"levelCounts"`
}

// EntityFlaggedEvent is published for each entity assessed at the critical level.
type EntityFlaggedEvent struct {
	AssessmentID string   `json:"assessmentId"`
	EntityID     string   `json:"entityId"`
	Name         string   `json:"name"`
	RiskScore    float64  `json:"riskScore"`
	RiskLevel    string   `json:"riskLevel"`
	RedFlags     []string `json:"redFlags"`
}
