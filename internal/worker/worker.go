// Package worker turns ledger events into published assessments.
//
// A run loads the dataset ledger, builds a snapshot, reuses a cached
// assessment when the snapshot hash is unchanged, and otherwise assesses,
// persists, caches and announces the result.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/sentinela/internal/assessment"
	"github.com/opensource-finance/sentinela/internal/bus"
	"github.com/opensource-finance/sentinela/internal/domain"
	"github.com/opensource-finance/sentinela/internal/ingest"
	"github.com/opensource-finance/sentinela/internal/metrics"
)

// Config holds worker configuration.
type Config struct {
	// Datasets to subscribe to.
	Datasets []string

	// Snapshot activity filter.
	Snapshot ingest.Options

	// CacheTTL bounds how long an assessment is reused for an unchanged snapshot.
	CacheTTL time.Duration
}

// Worker runs assessments on demand and in response to bus events.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	processor *assessment.Processor
	store     *assessment.Store
	metrics   *metrics.Registry
	cfg       Config

	runs singleflight.Group

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a worker. cache and m may be nil.
func NewWorker(b domain.EventBus, repo domain.Repository, cache domain.Cache, processor *assessment.Processor, store *assessment.Store, m *metrics.Registry, cfg Config) *Worker {
	if cfg.Snapshot == (ingest.Options{}) {
		cfg.Snapshot = ingest.DefaultOptions()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       b,
		repo:      repo,
		cache:     cache,
		processor: processor,
		store:     store,
		metrics:   m,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Result is the outcome of a run.
type Result struct {
	Assessment *domain.Assessment
	Cached     bool
}

// Start subscribes to ledger and refresh events for every configured dataset.
func (w *Worker) Start() error {
	if len(w.cfg.Datasets) == 0 {
		return fmt.Errorf("no datasets configured")
	}

	for _, datasetID := range w.cfg.Datasets {
		for _, topic := range []string{domain.TopicLedgerIngested, domain.TopicSnapshotRefresh} {
			sub, err := w.bus.Subscribe(w.ctx, datasetID, topic, w.handle)
			if err != nil {
				return fmt.Errorf("subscribe %s for %s: %w", topic, datasetID, err)
			}
			w.mu.Lock()
			w.subscriptions = append(w.subscriptions, sub)
			w.mu.Unlock()
		}
		slog.Info("dataset worker started", "dataset_id", datasetID)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, msg *domain.Message) error {
	res, err := w.Run(ctx, msg.DatasetID)
	if err != nil {
		w.metrics.RecordAssessment("error")
		slog.Error("assessment run failed",
			"dataset_id", msg.DatasetID,
			"topic", msg.Topic,
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if msg.Metadata[domain.MetadataReplyTo] != "" {
		payload, err := encodeAssessed(res.Assessment)
		if err != nil {
			return err
		}
		return w.bus.Reply(ctx, msg, payload)
	}
	return nil
}

// Run assesses the current ledger of a dataset. Concurrent runs for the same
// dataset share one execution.
func (w *Worker) Run(ctx context.Context, datasetID string) (*Result, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("datasetID is required")
	}
	v, err, _ := w.runs.Do(datasetID, func() (any, error) {
		return w.run(ctx, datasetID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (w *Worker) run(ctx context.Context, datasetID string) (*Result, error) {
	start := time.Now()

	ledger, err := w.repo.ListExpenses(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	snap := ingest.BuildSnapshot(datasetID, ledger, w.cfg.Snapshot)
	// A reloaded rule set must not reuse results computed under the old one.
	hash := snap.Hash() + "-" + w.processor.RulesFingerprint()

	if cached := w.cached(ctx, datasetID, hash); cached != nil {
		w.store.Publish(cached)
		w.metrics.RecordAssessment("cached")
		slog.Info("assessment reused",
			"dataset_id", datasetID,
			"assessment_id", cached.ID,
			"input_hash", hash,
		)
		return &Result{Assessment: cached, Cached: true}, nil
	}

	a, err := w.processor.Assess(ctx, snap)
	if err != nil {
		return nil, err
	}

	if err := w.repo.SaveAssessment(ctx, datasetID, a); err != nil {
		return nil, fmt.Errorf("save assessment: %w", err)
	}
	if w.cache != nil {
		if err := w.cache.SetAssessment(ctx, datasetID, hash, a, w.cfg.CacheTTL); err != nil {
			slog.Warn("failed to cache assessment", "dataset_id", datasetID, "error", err)
		}
	}
	w.store.Publish(a)
	w.metrics.RecordAssessment("ok")
	w.metrics.SetLevelCounts(datasetID, a.LevelCounts)

	w.announce(ctx, a)

	slog.Info("assessment completed",
		"dataset_id", datasetID,
		"assessment_id", a.ID,
		"entities", len(a.Entities),
		"critical", a.LevelCounts[domain.LevelCritical],
		"ledger_lines", len(ledger),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Result{Assessment: a}, nil
}

// cached returns a cached assessment for the hash, or nil. Cache failures
// are logged and treated as a miss.
func (w *Worker) cached(ctx context.Context, datasetID, hash string) *domain.Assessment {
	if w.cache == nil {
		return nil
	}
	a, err := w.cache.GetAssessment(ctx, datasetID, hash)
	if err != nil {
		slog.Warn("cache lookup failed", "dataset_id", datasetID, "error", err)
	}
	w.metrics.RecordCache(a != nil)
	if a != nil {
		a.Metadata.CacheHit = true
	}
	return a
}

// announce publishes the assessed event and one flagged event per critical
// entity. Publishing failures never fail the run.
func (w *Worker) announce(ctx context.Context, a *domain.Assessment) {
	if w.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, w.bus, a.DatasetID, domain.TopicSnapshotAssessed, assessedEvent(a)); err != nil {
		slog.Error("failed to publish assessment", "assessment_id", a.ID, "error", err)
	}

	for i := range a.Entities {
		r := &a.Entities[i]
		if !assessment.ShouldFlag(r) {
			continue
		}
		event := domain.EntityFlaggedEvent{
			AssessmentID: a.ID,
			EntityID:     r.EntityID,
			Name:         r.Name,
			RiskScore:    r.RiskScore,
			RiskLevel:    r.RiskLevel,
			RedFlags:     assessment.Reasons(r),
		}
		if err := bus.PublishJSON(ctx, w.bus, a.DatasetID, domain.TopicEntityFlagged, event); err != nil {
			slog.Error("failed to publish flagged entity",
				"assessment_id", a.ID,
				"entity_id", r.EntityID,
				"error", err,
			)
		}
	}
}

func assessedEvent(a *domain.Assessment) domain.SnapshotAssessedEvent {
	return domain.SnapshotAssessedEvent{
		AssessmentID: a.ID,
		InputHash:    a.InputHash,
		Entities:     len(a.Entities),
		LevelCounts:  a.LevelCounts,
	}
}

func encodeAssessed(a *domain.Assessment) ([]byte, error) {
	if a == nil {
		return nil, errors.New("no assessment")
	}
	return json.Marshal(assessedEvent(a))
}

// Stop unsubscribes from the bus.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
