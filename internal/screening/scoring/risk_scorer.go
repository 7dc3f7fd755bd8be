package scoring

import (
	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/shopspring/decimal"
)

// Recommendation messages, emitted in this order when their trigger is present
const (
	RecommendProceed         = "No matches found - proceed with normal processing"
	RecommendImmediateReview = "Immediate manual review required for high-confidence matches"
	RecommendConsiderBlock   = "Consider blocking transaction until review is complete"
	RecommendScheduledReview = "Schedule manual review within 24 hours for medium-confidence matches"
	RecommendSanctions       = "Sanctions match detected - notify compliance officer and file required regulatory reports"
	RecommendPEP             = "PEP match detected - apply enhanced due diligence procedures"
	RecommendRetry           = "Screening failed - retry the request once providers are available"
)

var levelWeights = map[models.MatchLevel]decimal.Decimal{
	models.MatchLevelLow:    decimal.RequireFromString("0.2"),
	models.MatchLevelMedium: decimal.RequireFromString("0.5"),
	models.MatchLevelHigh:   decimal.RequireFromString("0.8"),
	models.MatchLevelExact:  decimal.NewFromInt(1),
}

// Weight returns the risk weight of a match level
func Weight(level models.MatchLevel) decimal.Decimal {
	if w, ok := levelWeights[level]; ok {
		return w
	}
	return decimal.Zero
}

// RiskScorer turns a match list into an aggregate risk score and recommendations
type RiskScorer struct{}

// NewRiskScorer creates a risk scorer
func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

// Score returns the mean level weight over matches, rounded to four places,
// and the recommendations triggered by the match list.
func (s *RiskScorer) Score(matches []*models.ScreeningMatch) (float64, []string) {
	if len(matches) == 0 {
		return 0, []string{RecommendProceed}
	}

	sum := decimal.Zero
	var hasHighOrExact, hasMedium, hasSanctions, hasPEP bool
	for _, m := range matches {
		sum = sum.Add(Weight(m.MatchLevel))
		switch m.MatchLevel {
		case models.MatchLevelHigh, models.MatchLevelExact:
			hasHighOrExact = true
		case models.MatchLevelMedium:
			hasMedium = true
		}
		switch m.ListType {
		case models.ListTypeSanctions:
			hasSanctions = true
		case models.ListTypePEP:
			hasPEP = true
		}
	}

	score, _ := sum.Div(decimal.NewFromInt(int64(len(matches)))).Round(4).Float64()

	var recommendations []string
	if hasHighOrExact {
		recommendations = append(recommendations, RecommendImmediateReview, RecommendConsiderBlock)
	}
	if hasMedium {
		recommendations = append(recommendations, RecommendScheduledReview)
	}
	if hasSanctions {
		recommendations = append(recommendations, RecommendSanctions)
	}
	if hasPEP {
		recommendations = append(recommendations, RecommendPEP)
	}
	return score, recommendations
}
