package rules

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/events"
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/Aidin1998/watchlist_screening/internal/screening/monitoring"
	"go.uber.org/zap"
)

// RuleEngine evaluates screening rules against produced matches and adjusts
// their review disposition. It never changes a match's level or confidence.
type RuleEngine struct {
	mu        sync.Mutex
	logger    *zap.SugaredLogger
	publisher events.Publisher
	prom      *monitoring.PrometheusMetrics

	metrics map[string]*RuleMetrics
}

// RuleMetrics tracks how often a rule was evaluated and fired
type RuleMetrics struct {
	RuleID          string    `json:"rule_id"`
	TotalExecutions int       `json:"total_executions"`
	TotalTriggers   int       `json:"total_triggers"`
	TriggerRate     float64   `json:"trigger_rate"`
	LastExecuted    time.Time `json:"last_executed"`
}

// NewRuleEngine creates a rule engine. Triggered notify/log actions are sent to publisher.
func NewRuleEngine(logger *zap.SugaredLogger, publisher events.Publisher) *RuleEngine {
	if publisher == nil {
		publisher = events.Nop
	}
	return &RuleEngine{
		logger:    logger,
		publisher: publisher,
		metrics:   make(map[string]*RuleMetrics),
	}
}

// SetPrometheusMetrics enables per-action trigger counters
func (re *RuleEngine) SetPrometheusMetrics(m *monitoring.PrometheusMetrics) {
	re.prom = m
}

// Apply runs every active rule, in ascending priority order, against every
// match. Matches are mutated in place and returned.
func (re *RuleEngine) Apply(ctx context.Context, rules []*models.ScreeningRule, matches []*models.ScreeningMatch, request *models.ScreeningRequest) []*models.ScreeningMatch {
	for _, rule := range Ordered(rules) {
		conditions := compileConditions(rule.Conditions)
		triggers := 0
		for _, match := range matches {
			if !rule.AppliesTo(match.ListType) {
				continue
			}
			if !evaluateConditions(conditions, match, request) {
				continue
			}
			triggers++
			match.MarkRuleApplied(rule.ID)
			for _, action := range rule.Actions {
				re.executeAction(ctx, rule, action, match, request)
			}
		}
		re.updateRuleMetrics(rule.ID, len(matches), triggers)
	}
	return matches
}

// Ordered returns the active rules sorted by priority, keeping declaration
// order between rules of equal priority.
func Ordered(rules []*models.ScreeningRule) []*models.ScreeningRule {
	active := make([]*models.ScreeningRule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active
}

// compiledCondition is a condition with its regex pattern compiled. pattern is
// nil for other operators and for patterns that do not compile.
type compiledCondition struct {
	models.RuleCondition
	pattern *regexp.Regexp
}

func compileCondition(c models.RuleCondition) compiledCondition {
	cc := compiledCondition{RuleCondition: c}
	if c.Operator == models.OperatorRegex {
		pattern := c.Value
		if !c.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		if re, err := regexp.Compile(pattern); err == nil {
			cc.pattern = re
		}
	}
	return cc
}

func compileConditions(conditions []models.RuleCondition) []compiledCondition {
	out := make([]compiledCondition, len(conditions))
	for i, c := range conditions {
		out[i] = compileCondition(c)
	}
	return out
}

// evaluateConditions folds the conditions left to right. Each condition after
// the first joins with its LogicalOperator, AND when unset.
func evaluateConditions(conditions []compiledCondition, match *models.ScreeningMatch, request *models.ScreeningRequest) bool {
	if len(conditions) == 0 {
		return false
	}

	result := evaluateCondition(conditions[0], match, request)
	for _, condition := range conditions[1:] {
		if condition.IsOr() {
			result = result || evaluateCondition(condition, match, request)
		} else {
			result = result && evaluateCondition(condition, match, request)
		}
	}
	return result
}

func evaluateCondition(condition compiledCondition, match *models.ScreeningMatch, request *models.ScreeningRequest) bool {
	fieldValue, ok := resolveField(condition.Field, match, request)
	if !ok {
		return false
	}

	switch condition.Operator {
	case models.OperatorGreaterThan, models.OperatorLessThan,
		models.OperatorGreaterOrEqual, models.OperatorLessOrEqual:
		return compareNumeric(condition.RuleCondition, fieldValue)
	case models.OperatorRegex:
		return condition.pattern != nil && condition.pattern.MatchString(fieldValue)
	}

	value := condition.Value
	if !condition.CaseSensitive {
		fieldValue = strings.ToLower(fieldValue)
		value = strings.ToLower(value)
	}

	switch condition.Operator {
	case models.OperatorEquals:
		return fieldValue == value
	case models.OperatorNotEquals:
		return fieldValue != value
	case models.OperatorContains:
		return strings.Contains(fieldValue, value)
	case models.OperatorStartsWith:
		return strings.HasPrefix(fieldValue, value)
	case models.OperatorEndsWith:
		return strings.HasSuffix(fieldValue, value)
	case models.OperatorIn:
		for _, candidate := range strings.Split(value, ",") {
			if strings.TrimSpace(candidate) == fieldValue {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// resolveField reads a condition field from the request subject or the match.
// Numeric fields are serialized to strings for comparison.
func resolveField(field string, match *models.ScreeningMatch, request *models.ScreeningRequest) (string, bool) {
	switch field {
	case "name":
		if request == nil {
			return "", false
		}
		return request.Subject.Name, true
	case "nationality":
		if request == nil {
			return "", false
		}
		return request.Subject.Nationality, true
	case "entityType", "entity_type":
		if request == nil {
			return "", false
		}
		return string(request.Subject.EntityType), true
	case "priority":
		if request == nil {
			return "", false
		}
		return string(request.Priority), true
	case "matchLevel", "match_level":
		return string(match.MatchLevel), true
	case "confidenceScore", "confidence_score":
		return strconv.FormatFloat(match.ConfidenceScore, 'f', 4, 64), true
	case "listType", "list_type":
		return string(match.ListType), true
	case "sourceProvider", "source_provider":
		return match.SourceProvider, true
	case "matchedFields", "matched_fields":
		return strings.Join(match.MatchedFields, ","), true
	default:
		return "", false
	}
}

// compareNumeric compares numbers; match levels compare by tier rank
func compareNumeric(condition models.RuleCondition, fieldValue string) bool {
	left, ok := numericValue(condition.Field, fieldValue)
	if !ok {
		return false
	}
	right, ok := numericValue(condition.Field, condition.Value)
	if !ok {
		return false
	}

	switch condition.Operator {
	case models.OperatorGreaterThan:
		return left > right
	case models.OperatorLessThan:
		return left < right
	case models.OperatorGreaterOrEqual:
		return left >= right
	case models.OperatorLessOrEqual:
		return left <= right
	}
	return false
}

func numericValue(field, raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if field == "matchLevel" || field == "match_level" {
		level := models.MatchLevel(strings.ToLower(raw))
		if level == models.MatchLevelNone || level.Rank() > 0 {
			return float64(level.Rank()), true
		}
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (re *RuleEngine) executeAction(ctx context.Context, rule *models.ScreeningRule, action models.RuleAction, match *models.ScreeningMatch, request *models.ScreeningRequest) {
	re.prom.RecordRuleTrigger(rule.ID, string(action.Type))

	switch action.Type {
	case models.ActionBlock, models.ActionRequireReview:
		match.RequiresManualReview = true
		re.logger.Infow("Rule escalated match for review",
			"rule_id", rule.ID,
			"action", action.Type,
			"match_id", match.ID,
			"entity_id", match.EntityID)
	case models.ActionNotify, models.ActionLog:
		event := events.New(events.TypeRuleActionTriggered)
		event.RuleID = rule.ID
		event.MatchID = match.ID
		if request != nil {
			event.RequestID = request.ID
		}
		event.Payload["action"] = string(action.Type)
		event.Payload["rule_name"] = rule.Name
		event.Payload["match_level"] = string(match.MatchLevel)
		for k, v := range action.Parameters {
			event.Payload[k] = v
		}
		if err := re.publisher.Publish(ctx, event); err != nil {
			re.logger.Warnw("Failed to publish rule action event",
				"rule_id", rule.ID,
				"action", action.Type,
				"error", err)
		}
	case models.ActionFlag:
		// Matches present in a result are already flagged.
	}
}

func (re *RuleEngine) updateRuleMetrics(ruleID string, executions, triggers int) {
	re.mu.Lock()
	defer re.mu.Unlock()

	metrics := re.metrics[ruleID]
	if metrics == nil {
		metrics = &RuleMetrics{RuleID: ruleID}
		re.metrics[ruleID] = metrics
	}
	metrics.TotalExecutions += executions
	metrics.TotalTriggers += triggers
	if metrics.TotalExecutions > 0 {
		metrics.TriggerRate = float64(metrics.TotalTriggers) / float64(metrics.TotalExecutions)
	}
	metrics.LastExecuted = time.Now()
}

// GetRuleMetrics returns a copy of the metrics for a rule
func (re *RuleEngine) GetRuleMetrics(ruleID string) (RuleMetrics, error) {
	re.mu.Lock()
	defer re.mu.Unlock()

	metrics, exists := re.metrics[ruleID]
	if !exists {
		return RuleMetrics{}, fmt.Errorf("metrics for rule %s: %w", ruleID, models.ErrNotFound)
	}
	return *metrics, nil
}

var validOperators = map[models.RuleOperator]bool{
	models.OperatorEquals: true, models.OperatorNotEquals: true,
	models.OperatorContains: true, models.OperatorStartsWith: true, models.OperatorEndsWith: true,
	models.OperatorRegex: true, models.OperatorIn: true,
	models.OperatorGreaterThan: true, models.OperatorLessThan: true,
	models.OperatorGreaterOrEqual: true, models.OperatorLessOrEqual: true,
}

var validActions = map[models.RuleActionType]bool{
	models.ActionFlag: true, models.ActionBlock: true, models.ActionRequireReview: true,
	models.ActionNotify: true, models.ActionLog: true,
}

// Validate checks that a rule can be evaluated
func Validate(rule *models.ScreeningRule) error {
	if rule == nil {
		return fmt.Errorf("%w: empty rule entry", models.ErrInvalidRule)
	}
	if rule.ID == "" {
		return fmt.Errorf("%w: missing id", models.ErrInvalidRule)
	}
	if len(rule.Conditions) == 0 {
		return fmt.Errorf("%w: rule %s has no conditions", models.ErrInvalidRule, rule.ID)
	}
	if len(rule.Actions) == 0 {
		return fmt.Errorf("%w: rule %s has no actions", models.ErrInvalidRule, rule.ID)
	}
	for _, lt := range rule.WatchlistTypes {
		if !lt.Valid() {
			return fmt.Errorf("%w: rule %s has unknown watchlist type %q", models.ErrInvalidRule, rule.ID, lt)
		}
	}
	for i, c := range rule.Conditions {
		if !validOperators[c.Operator] {
			return fmt.Errorf("%w: rule %s condition %d has unknown operator %q", models.ErrInvalidRule, rule.ID, i, c.Operator)
		}
		if c.LogicalOperator != "" && !strings.EqualFold(c.LogicalOperator, models.LogicalAnd) && !c.IsOr() {
			return fmt.Errorf("%w: rule %s condition %d has unknown logical operator %q", models.ErrInvalidRule, rule.ID, i, c.LogicalOperator)
		}
		if _, ok := resolveField(c.Field, &models.ScreeningMatch{}, &models.ScreeningRequest{}); !ok {
			return fmt.Errorf("%w: rule %s condition %d has unknown field %q", models.ErrInvalidRule, rule.ID, i, c.Field)
		}
		if c.Operator == models.OperatorRegex {
			if _, err := regexp.Compile(c.Value); err != nil {
				return fmt.Errorf("%w: rule %s condition %d: %v", models.ErrInvalidRule, rule.ID, i, err)
			}
		}
	}
	for i, a := range rule.Actions {
		if !validActions[a.Type] {
			return fmt.Errorf("%w: rule %s action %d has unknown type %q", models.ErrInvalidRule, rule.ID, i, a.Type)
		}
	}
	return nil
}
