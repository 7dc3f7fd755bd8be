// Package matching scores a screening subject against a single watchlist entity.
package matching

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/agnivade/levenshtein"
)

// Similarity tier thresholds. A similarity must be strictly greater than the
// threshold to reach the tier.
const (
	ExactThreshold  = 0.95
	HighThreshold   = 0.8
	MediumThreshold = 0.6
	LowThreshold    = 0.4

	DateOfBirthBonus = 0.2
	NationalityBonus = 0.1

	// ReviewConfidenceFloor is the confidence below which a high match goes to review
	ReviewConfidenceFloor = 0.9
)

// Matched field tags
const (
	FieldName        = "name"
	FieldPartialName = "partial_name"
	FieldWeakName    = "weak_name"
	FieldAlias       = "alias"
	FieldDateOfBirth = "date_of_birth"
	FieldNationality = "nationality"
)

const weakSimilarityExplanation = "Weak similarity detected"

// NameSimilarity returns the normalized Levenshtein similarity of two names,
// compared case-insensitively. Two empty names are identical.
func NameSimilarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}

// LevelFor maps a name similarity onto a match tier
func LevelFor(similarity float64) models.MatchLevel {
	switch {
	case similarity > ExactThreshold:
		return models.MatchLevelExact
	case similarity > HighThreshold:
		return models.MatchLevelHigh
	case similarity > MediumThreshold:
		return models.MatchLevelMedium
	case similarity > LowThreshold:
		return models.MatchLevelLow
	default:
		return models.MatchLevelNone
	}
}

// Compare scores subject against entity. It is pure: the returned match has no
// ID or request binding, callers attach those.
func Compare(subject models.Subject, entity models.WatchlistEntity) models.ScreeningMatch {
	match := models.ScreeningMatch{
		EntityID:       entity.ID,
		EntityName:     entity.Name,
		ListType:       entity.ListType,
		SourceProvider: entity.SourceProvider,
		MatchedFields:  make([]string, 0, 4),
	}
	var reasons []string

	similarity := NameSimilarity(subject.Name, entity.Name)
	match.MatchLevel = LevelFor(similarity)
	match.ConfidenceScore = similarity

	switch match.MatchLevel {
	case models.MatchLevelExact:
		match.MatchedFields = append(match.MatchedFields, FieldName)
		reasons = append(reasons, fmt.Sprintf("Exact name match with %q (similarity %.2f)", entity.Name, similarity))
	case models.MatchLevelHigh:
		match.MatchedFields = append(match.MatchedFields, FieldName)
		reasons = append(reasons, fmt.Sprintf("Strong name similarity with %q (%.2f)", entity.Name, similarity))
	case models.MatchLevelMedium:
		match.MatchedFields = append(match.MatchedFields, FieldPartialName)
		reasons = append(reasons, fmt.Sprintf("Partial name similarity with %q (%.2f)", entity.Name, similarity))
	case models.MatchLevelLow:
		match.MatchedFields = append(match.MatchedFields, FieldWeakName)
		reasons = append(reasons, fmt.Sprintf("Weak name similarity with %q (%.2f)", entity.Name, similarity))
	}

	// Aliases raise confidence only. The tier stays the one derived from the primary name.
	bestAlias := ""
	for _, alias := range subject.Aliases {
		if aliasSimilarity := NameSimilarity(alias, entity.Name); aliasSimilarity > match.ConfidenceScore {
			match.ConfidenceScore = aliasSimilarity
			bestAlias = alias
		}
	}
	if bestAlias != "" {
		match.MatchedFields = append(match.MatchedFields, FieldAlias)
		reasons = append(reasons, fmt.Sprintf("Alias %q resembles %q (%.2f)", bestAlias, entity.Name, match.ConfidenceScore))
	}

	if subject.DateOfBirth != "" && entity.DateOfBirth != "" &&
		strings.TrimSpace(subject.DateOfBirth) == strings.TrimSpace(entity.DateOfBirth) {
		match.ConfidenceScore += DateOfBirthBonus
		match.MatchedFields = append(match.MatchedFields, FieldDateOfBirth)
		reasons = append(reasons, fmt.Sprintf("Date of birth matches (%s)", entity.DateOfBirth))
	}

	if subject.Nationality != "" && entity.Nationality != "" &&
		strings.EqualFold(strings.TrimSpace(subject.Nationality), strings.TrimSpace(entity.Nationality)) {
		match.ConfidenceScore += NationalityBonus
		match.MatchedFields = append(match.MatchedFields, FieldNationality)
		reasons = append(reasons, fmt.Sprintf("Nationality matches (%s)", entity.Nationality))
	}

	match.ConfidenceScore = clamp(match.ConfidenceScore)

	match.RequiresManualReview = match.MatchLevel == models.MatchLevelMedium ||
		(match.MatchLevel == models.MatchLevelHigh && match.ConfidenceScore < ReviewConfidenceFloor)

	if len(reasons) == 0 {
		match.Explanation = weakSimilarityExplanation
	} else {
		match.Explanation = strings.Join(reasons, "; ")
	}

	return match
}

func clamp(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
