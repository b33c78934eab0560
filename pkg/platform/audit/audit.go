// Package audit records pipeline events: stage completions, stage failures,
// and receipt issuance. Events are appended to a store for per-run retrieval
// and optionally fanned out to a Kafka sink for downstream consumers.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Action string

const (
	ActionRunStarted     Action = "run_started"
	ActionStageCompleted Action = "stage_completed"
	ActionStageFailed    Action = "stage_failed"
	ActionRunCompleted   Action = "run_completed"
	ActionReceiptIssued  Action = "receipt_issued"
	ActionReportExported Action = "report_exported"
)

// Event is emitted from pipeline logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage,omitempty"`
	Action    Action    `json:"action"`
	Outcome   string    `json:"outcome,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Store persists events for per-run listing.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRun(ctx context.Context, runID string) ([]Event, error)
}

// Sink receives a copy of every event, best effort.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RunID] = append(s.events[event.RunID], event)
	return nil
}

func (s *InMemoryStore) ListByRun(_ context.Context, runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[runID]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]Event)
}

// Publisher appends events to the store and fans out to the sink. Store
// writes are authoritative; sink publishes are best effort and only logged
// on failure, so a broker outage never blocks a run.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger
}

type Option func(*Publisher)

func WithSink(sink Sink) Option {
	return func(p *Publisher) { p.sink = sink }
}

func NewPublisher(store Store, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records the event. A zero timestamp is stamped with the current time.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit event persistence failed",
			"action", event.Action,
			"run_id", event.RunID,
			"error", err,
		)
		return err
	}
	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.WarnContext(ctx, "audit sink publish failed",
				"action", event.Action,
				"run_id", event.RunID,
				"error", err,
			)
		}
	}
	return nil
}
