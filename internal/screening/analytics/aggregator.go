package analytics

import (
	"sync"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/tidwall/btree"
)

const dayLayout = "2006-01-02"

// DailyBucket holds the trend counters of one calendar day (UTC)
type DailyBucket struct {
	Date          string `json:"date"`
	Screenings    int    `json:"screenings"`
	Matches       int    `json:"matches"`
	ManualReviews int    `json:"manual_reviews"`
}

// Snapshot is a point-in-time copy of the aggregated counters
type Snapshot struct {
	TotalScreenings       int                           `json:"total_screenings"`
	PendingScreenings     int                           `json:"pending_screenings"`
	ActiveScreenings      int                           `json:"active_screenings"`
	CompletedScreenings   int                           `json:"completed_screenings"`
	FailedScreenings      int                           `json:"failed_screenings"`
	TotalMatches          int                           `json:"total_matches"`
	ManualReviews         int                           `json:"manual_reviews"`
	AverageProcessingTime time.Duration                 `json:"average_processing_time"`
	MatchRate             float64                       `json:"match_rate"`
	Dispositions          map[models.ReviewDecision]int `json:"dispositions"`
	FalsePositiveRate     float64                       `json:"false_positive_rate"`
	Daily                 []DailyBucket                 `json:"daily"`
	GeneratedAt           time.Time                     `json:"generated_at"`
}

// Aggregator keeps running screening statistics. Every mutation is
// serialized under one mutex so the incremental mean never loses a sample.
type Aggregator struct {
	mu sync.Mutex

	total, pending, active, completed, failed int
	totalMatches, manualReviews              int
	avgProcessing                            float64
	dispositions                             map[models.ReviewDecision]int

	daily         *btree.BTreeG[*DailyBucket]
	retentionDays int
}

// NewAggregator creates an aggregator keeping at most retentionDays daily
// buckets (90 when non-positive).
func NewAggregator(retentionDays int) *Aggregator {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Aggregator{
		dispositions: make(map[models.ReviewDecision]int),
		daily: btree.NewBTreeG(func(a, b *DailyBucket) bool {
			return a.Date < b.Date
		}),
		retentionDays: retentionDays,
	}
}

func (a *Aggregator) bucket(at time.Time) *DailyBucket {
	key := at.UTC().Format(dayLayout)
	if b, ok := a.daily.Get(&DailyBucket{Date: key}); ok {
		return b
	}
	b := &DailyBucket{Date: key}
	a.daily.Set(b)
	for a.daily.Len() > a.retentionDays {
		a.daily.PopMin()
	}
	return b
}

// RecordSubmitted counts a newly created request
func (a *Aggregator) RecordSubmitted(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.pending++
	a.bucket(at).Screenings++
}

// RecordStarted moves a request from pending to active
func (a *Aggregator) RecordStarted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending > 0 {
		a.pending--
	}
	a.active++
}

// RecordCompleted counts a completed request and folds its processing time
// into the running mean: avg' = (avg*(n-1) + x) / n.
func (a *Aggregator) RecordCompleted(at time.Time, processing time.Duration, matches, manualReviews int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active > 0 {
		a.active--
	}
	a.completed++
	n := float64(a.completed)
	a.avgProcessing = (a.avgProcessing*(n-1) + float64(processing)) / n

	a.totalMatches += matches
	a.manualReviews += manualReviews
	b := a.bucket(at)
	b.Matches += matches
	b.ManualReviews += manualReviews
}

// RecordFailed counts a failed request
func (a *Aggregator) RecordFailed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active > 0 {
		a.active--
	}
	a.failed++
}

// RecordDisposition counts a reviewer decision
func (a *Aggregator) RecordDisposition(decision models.ReviewDecision) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dispositions[decision]++
}

// Snapshot returns a copy of the current statistics
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		TotalScreenings:       a.total,
		PendingScreenings:     a.pending,
		ActiveScreenings:      a.active,
		CompletedScreenings:   a.completed,
		FailedScreenings:      a.failed,
		TotalMatches:          a.totalMatches,
		ManualReviews:         a.manualReviews,
		AverageProcessingTime: time.Duration(a.avgProcessing),
		Dispositions:          make(map[models.ReviewDecision]int, len(a.dispositions)),
		Daily:                 make([]DailyBucket, 0, a.daily.Len()),
		GeneratedAt:           time.Now().UTC(),
	}
	if a.total > 0 {
		s.MatchRate = float64(a.totalMatches) / float64(a.total)
	}

	reviewed := 0
	for d, n := range a.dispositions {
		s.Dispositions[d] = n
		reviewed += n
	}
	if reviewed > 0 {
		s.FalsePositiveRate = float64(a.dispositions[models.DecisionFalsePositive]) / float64(reviewed)
	}

	a.daily.Scan(func(b *DailyBucket) bool {
		s.Daily = append(s.Daily, *b)
		return true
	})
	return s
}

// Trend returns the daily buckets in [from, to], both inclusive
func (a *Aggregator) Trend(from, to time.Time) []DailyBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	last := to.UTC().Format(dayLayout)
	out := make([]DailyBucket, 0)
	a.daily.Ascend(&DailyBucket{Date: from.UTC().Format(dayLayout)}, func(b *DailyBucket) bool {
		if b.Date > last {
			return false
		}
		out = append(out, *b)
		return true
	})
	return out
}
