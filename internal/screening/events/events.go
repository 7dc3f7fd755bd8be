// Package events carries screening lifecycle notifications to logging,
// notification and streaming collaborators.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type names an event
type Type string

const (
	TypeRequestCreated      Type = "request.created"
	TypeScreeningStarted    Type = "screening.started"
	TypeScreeningCompleted  Type = "screening.completed"
	TypeScreeningFailed     Type = "screening.failed"
	TypeRuleActionTriggered Type = "rule.action_triggered"
	TypeMatchReviewed       Type = "match.reviewed"
	TypeEntityAdded         Type = "watchlist.entity_added"
	TypeEntityUpdated       Type = "watchlist.entity_updated"
	TypeEntityDeleted       Type = "watchlist.entity_deleted"
)

// Event is a single domain notification
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	RequestID  string                 `json:"request_id,omitempty"`
	MatchID    string                 `json:"match_id,omitempty"`
	RuleID     string                 `json:"rule_id,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// New creates an event of the given type stamped with an id and the current time
func New(t Type) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		Payload:    make(map[string]interface{}),
		OccurredAt: time.Now().UTC(),
	}
}

// Key returns the partitioning key for the event
func (e Event) Key() string {
	switch {
	case e.RequestID != "":
		return e.RequestID
	case e.EntityID != "":
		return e.EntityID
	case e.MatchID != "":
		return e.MatchID
	default:
		return e.ID
	}
}

// Publisher delivers events to a collaborator
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event Event) error

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Multi fans an event out to every publisher and joins their errors
type Multi []Publisher

// Publish delivers to all publishers, continuing past failures
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes every event to the structured log
type LogPublisher struct {
	logger *zap.SugaredLogger
}

// NewLogPublisher creates a publisher backed by the logger
func NewLogPublisher(logger *zap.SugaredLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Infow("Screening event",
		"event_id", event.ID,
		"type", event.Type,
		"request_id", event.RequestID,
		"match_id", event.MatchID,
		"rule_id", event.RuleID,
		"entity_id", event.EntityID,
		"payload", event.Payload,
	)
	return nil
}
