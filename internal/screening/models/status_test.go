package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatus_Transitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusInProgress))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusInProgress.CanTransitionTo(StatusFailed))

	assert.False(t, StatusPending.CanTransitionTo(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusInProgress))
	assert.False(t, StatusFailed.CanTransitionTo(StatusPending))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusFailed))

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
}

func TestScreeningResult_Summarize(t *testing.T) {
	result := &ScreeningResult{
		Matches: []*ScreeningMatch{
			{MatchLevel: MatchLevelExact, ListType: ListTypeSanctions},
			{MatchLevel: MatchLevelMedium, ListType: ListTypePEP, RequiresManualReview: true},
			{MatchLevel: MatchLevelMedium, ListType: ListTypeSanctions},
		},
	}
	result.Summarize()

	assert.Equal(t, 3, result.TotalMatches)
	assert.Equal(t, 2, result.MatchesByLevel[MatchLevelMedium])
	assert.Equal(t, 1, result.MatchesByLevel[MatchLevelExact])
	assert.Equal(t, 2, result.MatchesByListType[ListTypeSanctions])
	assert.True(t, result.RequiresManualReview)

	result.Matches[1].RequiresManualReview = false
	result.Summarize()
	assert.False(t, result.RequiresManualReview)
}

func TestScreeningMatch_MarkRuleAppliedIsIdempotent(t *testing.T) {
	m := &ScreeningMatch{}
	m.MarkRuleApplied("r1")
	m.MarkRuleApplied("r2")
	m.MarkRuleApplied("r1")
	assert.Equal(t, []string{"r1", "r2"}, m.AppliedRules)
}
