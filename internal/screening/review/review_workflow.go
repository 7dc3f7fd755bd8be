package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/analytics"
	"github.com/Aidin1998/watchlist_screening/internal/screening/events"
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/monitoring"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"github.com/Aidin1998/watchlist_screening/pkg/validation"
	"go.uber.org/zap"
)

// Workflow records reviewer dispositions on matches. A disposition is written
// once; corrections are not supported.
type Workflow struct {
	matches   storage.MatchRepository
	analytics *analytics.Aggregator
	publisher events.Publisher
	validator *validation.Validator
	metrics   *monitoring.PrometheusMetrics
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewWorkflow creates a review workflow
func NewWorkflow(
	matches storage.MatchRepository,
	aggregator *analytics.Aggregator,
	publisher events.Publisher,
	validator *validation.Validator,
	metrics *monitoring.PrometheusMetrics,
	logger *zap.SugaredLogger,
) *Workflow {
	if publisher == nil {
		publisher = events.Nop
	}
	return &Workflow{
		matches:   matches,
		analytics: aggregator,
		publisher: publisher,
		validator: validator,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordDisposition stores the reviewer's decision for a match and returns the
// updated match. It fails with ErrNotFound for an unknown match and with
// ErrAlreadyReviewed when a decision was already recorded.
func (w *Workflow) RecordDisposition(ctx context.Context, matchID, reviewerID string, decision models.ReviewDecision, notes string) (*models.ScreeningMatch, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidDecision, decision)
	}
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return nil, models.ErrMissingReviewer
	}

	disposition := models.ReviewDisposition{
		Decision:   decision,
		ReviewerID: reviewerID,
		ReviewedAt: w.now(),
		Notes:      w.validator.SanitizeText(notes),
	}
	match, err := w.matches.RecordDisposition(ctx, matchID, disposition)
	if err != nil {
		return nil, err
	}

	w.analytics.RecordDisposition(decision)
	w.metrics.RecordReview(string(decision))

	event := events.New(events.TypeMatchReviewed)
	event.MatchID = match.ID
	event.RequestID = match.RequestID
	event.EntityID = match.EntityID
	event.Payload["decision"] = string(decision)
	event.Payload["reviewer_id"] = reviewerID
	event.Payload["match_level"] = string(match.MatchLevel)
	if err := w.publisher.Publish(ctx, event); err != nil {
		w.logger.Warnw("Failed to publish review event", "match_id", match.ID, "error", err)
	}

	w.logger.Infow("Match reviewed",
		"match_id", match.ID,
		"request_id", match.RequestID,
		"decision", decision,
		"reviewer_id", reviewerID)

	return match, nil
}
