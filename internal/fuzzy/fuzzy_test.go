// internal/fuzzy/fuzzy_test.go
package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cote d ivoire", Normalize("Côte d'Ivoire"))
	assert.Equal(t, "u s a", Normalize("U.S.A."))
	assert.Equal(t, "new zealand", Normalize("  New   Zealand  "))
	assert.Equal(t, "sao tome and principe", Normalize("São Tomé and Príncipe"))
	assert.Equal(t, "", Normalize("   "))
	assert.Equal(t, "", Normalize("!?#"))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"united", "states"}, Tokens("United States"))
	assert.Nil(t, Tokens("..."))
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("chad", "chad"))
	assert.Equal(t, 1, Levenshtein("chad", "chat"))
	assert.Equal(t, 4, Levenshtein("", "chad"))
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
}

func TestEvaluateExactAndAccents(t *testing.T) {
	th := DefaultThresholds()
	assert.True(t, Evaluate("Germany", "Germany", nil, th))
	assert.True(t, Evaluate("germany", "Germany", nil, th))
	assert.True(t, Evaluate("Cote d'Ivoire", "Côte d'Ivoire", nil, th))
}

func TestEvaluateSynonyms(t *testing.T) {
	th := DefaultThresholds()
	synonyms := map[string]string{
		"usa":     "United States",
		"u s a":   "United States",
		"america": "United States",
		"holland": "Netherlands",
	}

	assert.True(t, Evaluate("usa", "United States", synonyms, th))
	assert.True(t, Evaluate("U.S.A.", "United States", synonyms, th))
	assert.True(t, Evaluate("America", "United States", synonyms, th))
	assert.True(t, Evaluate("Holland", "Netherlands", synonyms, th))

	// A synonym for a different country must not count.
	assert.False(t, Evaluate("Holland", "United States", synonyms, th))
}

func TestEvaluateTypoTolerance(t *testing.T) {
	th := DefaultThresholds()
	assert.True(t, Evaluate("Germny", "Germany", nil, th))
	assert.True(t, Evaluate("Azerbajan", "Azerbaijan", nil, th))
	assert.False(t, Evaluate("France", "Germany", nil, th))
}

func TestEvaluateShortTargets(t *testing.T) {
	th := DefaultThresholds()

	// One edit on a four-letter name is a different country, not a typo.
	assert.False(t, Evaluate("Chat", "Chad", nil, th))
	assert.False(t, Evaluate("Iran", "Iraq", nil, th))
	assert.True(t, Evaluate("chad", "Chad", nil, th))
	assert.True(t, Evaluate("CHAD!", "Chad", nil, th))
}

func TestEvaluateTokenOverlap(t *testing.T) {
	th := DefaultThresholds()

	// All target tokens present in the guess, in any order and with
	// extras, is accepted for multi-word names.
	assert.True(t, Evaluate("the republic of south africa", "South Africa", nil, th))
	assert.True(t, Evaluate("africa south", "South Africa", nil, th))
	assert.False(t, Evaluate("south", "South Africa", nil, th))
}

func TestEvaluateMalformedInput(t *testing.T) {
	th := DefaultThresholds()
	assert.False(t, Evaluate("", "Chad", nil, th))
	assert.False(t, Evaluate("   ", "Chad", nil, th))
	assert.False(t, Evaluate("!!!", "Chad", nil, th))
	assert.False(t, Evaluate("chad", "", nil, th))
}
