package matching

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceLevenshtein is a plain dynamic-programming edit distance over runes
func referenceLevenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func randomString(r *rand.Rand, alphabet string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[r.Intn(len(alphabet))])
	}
	return sb.String()
}

func TestNameSimilarity_IdenticalNamesAreExact(t *testing.T) {
	for _, name := range []string{"John Doe", "ACME Trading LLC", "Ali", "Ñandú Holdings"} {
		entity := models.WatchlistEntity{ID: "e1", Name: name}
		match := Compare(models.Subject{Name: name}, entity)

		assert.Equal(t, 1.0, NameSimilarity(name, name))
		assert.Equal(t, models.MatchLevelExact, match.MatchLevel, name)
	}
}

func TestNameSimilarity_CaseInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, NameSimilarity("JOHN DOE", "john doe"))
	assert.Equal(t, 1.0, NameSimilarity("", ""))
	assert.Equal(t, 0.0, NameSimilarity("abc", ""))
}

func TestNameSimilarity_MatchesReferenceImplementation(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	const alphabet = "abcdefghijklmnopqrstuvwxyz "

	for i := 0; i < 40; i++ {
		a := randomString(r, alphabet, 1+r.Intn(12))
		b := randomString(r, alphabet, 1+r.Intn(12))

		maxLen := max(len(a), len(b))
		want := float64(maxLen-referenceLevenshtein(a, b)) / float64(maxLen)
		assert.InDelta(t, want, NameSimilarity(a, b), 1e-9, "%q vs %q", a, b)
	}
}

func TestNameSimilarity_DisjointEqualLengthNames(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		n := 1 + r.Intn(15)
		a := randomString(r, "abcdefghijklm", n)
		b := randomString(r, "nopqrstuvwxyz", n)

		want := float64(n-referenceLevenshtein(a, b)) / float64(n)
		got := NameSimilarity(a, b)
		assert.InDelta(t, want, got, 1e-9)
		assert.Equal(t, 0.0, got)
	}
}

func TestLevelFor_Thresholds(t *testing.T) {
	cases := []struct {
		similarity float64
		want       models.MatchLevel
	}{
		{1.0, models.MatchLevelExact},
		{0.96, models.MatchLevelExact},
		{0.95, models.MatchLevelHigh},
		{0.81, models.MatchLevelHigh},
		{0.8, models.MatchLevelMedium},
		{0.61, models.MatchLevelMedium},
		{0.6, models.MatchLevelLow},
		{0.41, models.MatchLevelLow},
		{0.4, models.MatchLevelNone},
		{0, models.MatchLevelNone},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, LevelFor(tc.similarity), "similarity %.2f", tc.similarity)
	}
}

func TestCompare_ExactWithBonusesIsClamped(t *testing.T) {
	subject := models.Subject{Name: "John Doe", DateOfBirth: "1980-01-01", Nationality: "US"}
	entity := models.WatchlistEntity{
		ID: "ofac-1", Name: "John Doe", DateOfBirth: "1980-01-01", Nationality: "us",
		ListType: models.ListTypeSanctions, SourceProvider: "ofac",
	}

	match := Compare(subject, entity)

	assert.Equal(t, models.MatchLevelExact, match.MatchLevel)
	assert.Equal(t, 1.0, match.ConfidenceScore)
	assert.Equal(t, []string{FieldName, FieldDateOfBirth, FieldNationality}, match.MatchedFields)
	assert.False(t, match.RequiresManualReview)
	assert.Equal(t, models.ListTypeSanctions, match.ListType)
	assert.Equal(t, "ofac", match.SourceProvider)
	assert.Contains(t, match.Explanation, "Exact name match")
	assert.Contains(t, match.Explanation, "Date of birth matches")
	assert.Contains(t, match.Explanation, "Nationality matches")
}

func TestCompare_JaneVersusJanet(t *testing.T) {
	match := Compare(models.Subject{Name: "Jane Smith"}, models.WatchlistEntity{Name: "Janet Smith"})

	assert.Equal(t, models.MatchLevelHigh, match.MatchLevel)
	assert.InDelta(t, 10.0/11.0, match.ConfidenceScore, 1e-9)
	assert.Equal(t, match.ConfidenceScore < ReviewConfidenceFloor, match.RequiresManualReview)
	assert.Equal(t, []string{FieldName}, match.MatchedFields)
}

func TestCompare_HighBelowConfidenceFloorNeedsReview(t *testing.T) {
	match := Compare(models.Subject{Name: "Jane Smithe"}, models.WatchlistEntity{Name: "Janet Smith"})

	assert.Equal(t, models.MatchLevelHigh, match.MatchLevel)
	assert.InDelta(t, 9.0/11.0, match.ConfidenceScore, 1e-9)
	assert.True(t, match.RequiresManualReview)
}

func TestCompare_MediumAlwaysNeedsReview(t *testing.T) {
	match := Compare(models.Subject{Name: "Jon Dow"}, models.WatchlistEntity{Name: "John Doe"})

	assert.Equal(t, models.MatchLevelMedium, match.MatchLevel)
	assert.True(t, match.RequiresManualReview)
	assert.Equal(t, []string{FieldPartialName}, match.MatchedFields)
}

func TestCompare_LowTierTagsWeakName(t *testing.T) {
	match := Compare(models.Subject{Name: "abcdef"}, models.WatchlistEntity{Name: "abcxyz"})

	assert.Equal(t, models.MatchLevelLow, match.MatchLevel)
	assert.Equal(t, []string{FieldWeakName}, match.MatchedFields)
	assert.False(t, match.RequiresManualReview)
}

func TestCompare_NoMatchExplanation(t *testing.T) {
	match := Compare(models.Subject{Name: "Zed"}, models.WatchlistEntity{Name: "Margaret Thompson"})

	assert.Equal(t, models.MatchLevelNone, match.MatchLevel)
	assert.Empty(t, match.MatchedFields)
	assert.Equal(t, weakSimilarityExplanation, match.Explanation)
}

func TestCompare_AliasRaisesConfidenceButNotTier(t *testing.T) {
	subject := models.Subject{Name: "J. Doe", Aliases: []string{"Johnny", "John Doe"}}
	match := Compare(subject, models.WatchlistEntity{Name: "John Doe"})

	assert.Equal(t, models.MatchLevelMedium, match.MatchLevel)
	assert.Equal(t, 1.0, match.ConfidenceScore)
	assert.Equal(t, []string{FieldPartialName, FieldAlias}, match.MatchedFields)
	assert.True(t, match.RequiresManualReview)
	assert.Contains(t, match.Explanation, `Alias "John Doe"`)
}

func TestCompare_MismatchedAuxiliaryFieldsAddNothing(t *testing.T) {
	subject := models.Subject{Name: "John Doe", DateOfBirth: "1980-01-01", Nationality: "US"}
	entity := models.WatchlistEntity{Name: "John Doe", DateOfBirth: "1981-01-01", Nationality: "GB"}

	match := Compare(subject, entity)
	assert.Equal(t, []string{FieldName}, match.MatchedFields)
	assert.Equal(t, 1.0, match.ConfidenceScore)
}

func TestCompare_ConfidenceAlwaysWithinBounds(t *testing.T) {
	names := []string{"John Doe", "Jon Doe", "J Doe", "Jane Roe", "Xavier Q", ""}
	dobs := []string{"", "1980-01-01", "1990-05-05"}
	nationalities := []string{"", "US", "us", "FR"}
	aliases := [][]string{nil, {"John Doe"}, {"Johnny D", "JD"}}

	for _, subjectName := range names {
		for _, entityName := range names {
			for _, dob := range dobs {
				for _, nat := range nationalities {
					for _, al := range aliases {
						subject := models.Subject{Name: subjectName, DateOfBirth: dob, Nationality: nat, Aliases: al}
						entity := models.WatchlistEntity{Name: entityName, DateOfBirth: "1980-01-01", Nationality: "US"}
						match := Compare(subject, entity)
						require.GreaterOrEqual(t, match.ConfidenceScore, 0.0)
						require.LessOrEqual(t, match.ConfidenceScore, 1.0)
					}
				}
			}
		}
	}
}

func TestCompare_IsDeterministic(t *testing.T) {
	subject := models.Subject{Name: "Vladimir Petrov", Aliases: []string{"V. Petrov"}, Nationality: "RU"}
	entity := models.WatchlistEntity{ID: "x", Name: "Vladimir Petrof", Nationality: "RU", ListType: models.ListTypePEP}

	first := Compare(subject, entity)
	second := Compare(subject, entity)
	assert.Equal(t, first, second)
}
