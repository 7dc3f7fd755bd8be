package models

import (
	"strings"
	"time"
)

// ListType identifies the kind of watchlist an entity was sourced from
type ListType string

const (
	ListTypeSanctions    ListType = "sanctions"
	ListTypePEP          ListType = "pep"
	ListTypeAdverseMedia ListType = "adverse_media"
	ListTypeBlocklist    ListType = "blocklist"
	ListTypeCustom       ListType = "custom"
)

// Valid reports whether the list type is one of the known watchlist kinds
func (lt ListType) Valid() bool {
	switch lt {
	case ListTypeSanctions, ListTypePEP, ListTypeAdverseMedia, ListTypeBlocklist, ListTypeCustom:
		return true
	}
	return false
}

// EntityType distinguishes natural persons from legal entities
type EntityType string

const (
	EntityTypeIndividual EntityType = "individual"
	EntityTypeBusiness   EntityType = "business"
)

// MatchLevel is the coarse confidence tier of a match
type MatchLevel string

const (
	MatchLevelNone   MatchLevel = "none"
	MatchLevelLow    MatchLevel = "low"
	MatchLevelMedium MatchLevel = "medium"
	MatchLevelHigh   MatchLevel = "high"
	MatchLevelExact  MatchLevel = "exact"
)

// Rank orders match levels from none (0) to exact (4)
func (ml MatchLevel) Rank() int {
	switch ml {
	case MatchLevelLow:
		return 1
	case MatchLevelMedium:
		return 2
	case MatchLevelHigh:
		return 3
	case MatchLevelExact:
		return 4
	default:
		return 0
	}
}

// Priority of a screening request. Drives the overall fan-out deadline.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ReviewDecision is a human reviewer's disposition of a match
type ReviewDecision string

const (
	DecisionTruePositive  ReviewDecision = "true_positive"
	DecisionFalsePositive ReviewDecision = "false_positive"
	DecisionInconclusive  ReviewDecision = "inconclusive"
)

// Valid reports whether the decision is a recognised disposition
func (d ReviewDecision) Valid() bool {
	switch d {
	case DecisionTruePositive, DecisionFalsePositive, DecisionInconclusive:
		return true
	}
	return false
}

// WatchlistEntity is a single listed record sourced from a provider.
// Owned by the ingestion side; the engine only reads it.
type WatchlistEntity struct {
	ID              string            `json:"id" yaml:"id" gorm:"primaryKey;size:64"`
	Name            string            `json:"name" yaml:"name" gorm:"index;not null"`
	Aliases         []string          `json:"aliases" yaml:"aliases" gorm:"serializer:json"`
	DateOfBirth     string            `json:"date_of_birth,omitempty" yaml:"date_of_birth" gorm:"size:10"`
	Nationality     string            `json:"nationality,omitempty" yaml:"nationality" gorm:"size:64"`
	Address         string            `json:"address,omitempty" yaml:"address"`
	Identifications map[string]string `json:"identifications,omitempty" yaml:"identifications" gorm:"serializer:json"`
	ListType        ListType          `json:"list_type" yaml:"list_type" gorm:"index;size:32"`
	SourceProvider  string            `json:"source_provider" yaml:"source_provider" gorm:"index;size:64"`
	ExternalID      string            `json:"external_id" yaml:"external_id" gorm:"size:128"`
	IsActive        bool              `json:"is_active" yaml:"is_active"`
	LastUpdated     time.Time         `json:"last_updated" yaml:"last_updated"`
}

// TableName overrides the gorm table name
func (WatchlistEntity) TableName() string { return "watchlist_entities" }

// Subject is the identity being screened
type Subject struct {
	Name            string            `json:"name" binding:"required" validate:"required,max=512"`
	Aliases         []string          `json:"aliases,omitempty" validate:"omitempty,dive,max=512" gorm:"serializer:json"`
	DateOfBirth     string            `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Nationality     string            `json:"nationality,omitempty" validate:"omitempty,max=64"`
	Address         string            `json:"address,omitempty"`
	Identifications map[string]string `json:"identifications,omitempty" gorm:"serializer:json"`
	EntityType      EntityType        `json:"entity_type" validate:"omitempty,oneof=individual business"`
}

// ScreeningRequest is the unit of work tracked through the lifecycle state machine
type ScreeningRequest struct {
	ID             string        `json:"id" gorm:"primaryKey;size:64"`
	Subject        Subject       `json:"subject" gorm:"embedded;embeddedPrefix:subject_"`
	WatchlistTypes []ListType    `json:"watchlist_types" gorm:"serializer:json"`
	Providers      []string      `json:"providers" gorm:"serializer:json"`
	Priority       Priority      `json:"priority" gorm:"size:16"`
	Status         RequestStatus `json:"status" gorm:"index;size:16"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// TableName overrides the gorm table name
func (ScreeningRequest) TableName() string { return "screening_requests" }

// WantsListType reports whether the request asked for the given list type.
// An empty selection means every list type.
func (r *ScreeningRequest) WantsListType(lt ListType) bool {
	if len(r.WatchlistTypes) == 0 {
		return true
	}
	for _, t := range r.WatchlistTypes {
		if t == lt {
			return true
		}
	}
	return false
}

// ReviewDisposition records a human decision on a match
type ReviewDisposition struct {
	Decision   ReviewDecision `json:"decision"`
	ReviewerID string         `json:"reviewer_id"`
	ReviewedAt time.Time      `json:"reviewed_at"`
	Notes      string         `json:"notes,omitempty"`
}

// ScreeningMatch is one candidate correspondence between a request and a watchlist entity
type ScreeningMatch struct {
	ID                   string             `json:"id" gorm:"primaryKey;size:64"`
	RequestID            string             `json:"request_id" gorm:"index;size:64"`
	EntityID             string             `json:"entity_id" gorm:"size:64"`
	EntityName           string             `json:"entity_name"`
	ListType             ListType           `json:"list_type" gorm:"size:32"`
	SourceProvider       string             `json:"source_provider" gorm:"size:64"`
	MatchLevel           MatchLevel         `json:"match_level" gorm:"size:16"`
	ConfidenceScore      float64            `json:"confidence_score"`
	MatchedFields        []string           `json:"matched_fields" gorm:"serializer:json"`
	Explanation          string             `json:"explanation"`
	RequiresManualReview bool               `json:"requires_manual_review"`
	AppliedRules         []string           `json:"applied_rules,omitempty" gorm:"serializer:json"`
	Disposition          *ReviewDisposition `json:"disposition,omitempty" gorm:"serializer:json"`
	Sequence             int                `json:"-" gorm:"index"`
	CreatedAt            time.Time          `json:"created_at"`
}

// TableName overrides the gorm table name
func (ScreeningMatch) TableName() string { return "screening_matches" }

// HasField reports whether the given field contributed to the match
func (m *ScreeningMatch) HasField(field string) bool {
	for _, f := range m.MatchedFields {
		if f == field {
			return true
		}
	}
	return false
}

// MarkRuleApplied records a rule id once
func (m *ScreeningMatch) MarkRuleApplied(ruleID string) {
	for _, id := range m.AppliedRules {
		if id == ruleID {
			return
		}
	}
	m.AppliedRules = append(m.AppliedRules, ruleID)
}

// ScreeningResult is the outcome of one request
type ScreeningResult struct {
	RequestID            string              `json:"request_id" gorm:"primaryKey;size:64"`
	Status               RequestStatus       `json:"status" gorm:"size:16"`
	TotalMatches         int                 `json:"total_matches"`
	MatchesByLevel       map[MatchLevel]int  `json:"matches_by_level" gorm:"serializer:json"`
	MatchesByListType    map[ListType]int    `json:"matches_by_list_type" gorm:"serializer:json"`
	Matches              []*ScreeningMatch   `json:"matches" gorm:"-"`
	RiskScore            float64             `json:"risk_score"`
	Recommendations      []string            `json:"recommendations" gorm:"serializer:json"`
	RequiresManualReview bool                `json:"requires_manual_review"`
	ProcessedBy          []string            `json:"processed_by" gorm:"serializer:json"`
	Errors               map[string]string   `json:"errors,omitempty" gorm:"serializer:json"`
	ProcessingTime       time.Duration       `json:"processing_time"`
	CompletedAt          time.Time           `json:"completed_at"`
}

// TableName overrides the gorm table name
func (ScreeningResult) TableName() string { return "screening_results" }

// Summarize recomputes the counters and the review flag from Matches
func (r *ScreeningResult) Summarize() {
	r.TotalMatches = len(r.Matches)
	r.MatchesByLevel = make(map[MatchLevel]int)
	r.MatchesByListType = make(map[ListType]int)
	r.RequiresManualReview = false
	for _, m := range r.Matches {
		r.MatchesByLevel[m.MatchLevel]++
		r.MatchesByListType[m.ListType]++
		if m.RequiresManualReview {
			r.RequiresManualReview = true
		}
	}
}

// RuleOperator compares a resolved field against a condition value
type RuleOperator string

const (
	OperatorEquals         RuleOperator = "equals"
	OperatorNotEquals      RuleOperator = "not_equals"
	OperatorContains       RuleOperator = "contains"
	OperatorStartsWith     RuleOperator = "starts_with"
	OperatorEndsWith       RuleOperator = "ends_with"
	OperatorRegex          RuleOperator = "regex"
	OperatorIn             RuleOperator = "in"
	OperatorGreaterThan    RuleOperator = "greater_than"
	OperatorLessThan       RuleOperator = "less_than"
	OperatorGreaterOrEqual RuleOperator = "greater_or_equal"
	OperatorLessOrEqual    RuleOperator = "less_or_equal"
)

// RuleActionType is what a triggered rule does to a match
type RuleActionType string

const (
	ActionFlag          RuleActionType = "flag"
	ActionBlock         RuleActionType = "block"
	ActionRequireReview RuleActionType = "require_review"
	ActionNotify        RuleActionType = "notify"
	ActionLog           RuleActionType = "log"
)

// Logical operators joining a condition to the conditions before it
const (
	LogicalAnd = "AND"
	LogicalOr  = "OR"
)

// RuleCondition is a single field test inside a rule
type RuleCondition struct {
	Field           string       `json:"field" yaml:"field"`
	Operator        RuleOperator `json:"operator" yaml:"operator"`
	Value           string       `json:"value" yaml:"value"`
	CaseSensitive   bool         `json:"case_sensitive" yaml:"case_sensitive"`
	LogicalOperator string       `json:"logical_operator,omitempty" yaml:"logical_operator"`
}

// IsOr reports whether the condition joins with OR
func (c RuleCondition) IsOr() bool {
	return strings.EqualFold(c.LogicalOperator, LogicalOr)
}

// RuleAction is one action executed when a rule fires
type RuleAction struct {
	Type       RuleActionType    `json:"type" yaml:"type"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters"`
}

// ScreeningRule is a named, prioritized, activatable compliance policy
type ScreeningRule struct {
	ID             string          `json:"id" yaml:"id" gorm:"primaryKey;size:64"`
	Name           string          `json:"name" yaml:"name"`
	Description    string          `json:"description,omitempty" yaml:"description"`
	Priority       int             `json:"priority" yaml:"priority" gorm:"index"`
	IsActive       bool            `json:"is_active" yaml:"is_active"`
	WatchlistTypes []ListType      `json:"watchlist_types,omitempty" yaml:"watchlist_types" gorm:"serializer:json"`
	Conditions     []RuleCondition `json:"conditions" yaml:"conditions" gorm:"serializer:json"`
	Actions        []RuleAction    `json:"actions" yaml:"actions" gorm:"serializer:json"`
	CreatedAt      time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time       `json:"updated_at" yaml:"-"`
}

// TableName overrides the gorm table name
func (ScreeningRule) TableName() string { return "screening_rules" }

// AppliesTo reports whether the rule covers the given list type
func (r *ScreeningRule) AppliesTo(lt ListType) bool {
	if len(r.WatchlistTypes) == 0 {
		return true
	}
	for _, t := range r.WatchlistTypes {
		if t == lt {
			return true
		}
	}
	return false
}

// ProviderConfig describes one watchlist data provider
type ProviderConfig struct {
	Name               string     `json:"name" mapstructure:"name" gorm:"primaryKey;size:64"`
	Enabled            bool       `json:"enabled" mapstructure:"enabled"`
	TimeoutMs          int        `json:"timeout_ms" mapstructure:"timeout_ms"`
	RetryAttempts      int        `json:"retry_attempts" mapstructure:"retry_attempts"`
	RateLimitPerMinute int        `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	ListTypes          []ListType `json:"list_types,omitempty" mapstructure:"list_types" gorm:"serializer:json"`
	UpdatedAt          time.Time  `json:"updated_at" mapstructure:"-"`
}

// TableName overrides the gorm table name
func (ProviderConfig) TableName() string { return "screening_providers" }

// Timeout returns the per-call budget, defaulting to five seconds
func (p *ProviderConfig) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// Serves reports whether the provider carries the given list type
func (p *ProviderConfig) Serves(lt ListType) bool {
	if len(p.ListTypes) == 0 {
		return true
	}
	for _, t := range p.ListTypes {
		if t == lt {
			return true
		}
	}
	return false
}
