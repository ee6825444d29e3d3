// internal/engine/rounds_test.go
package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hastinyre/geogle/internal/geodata"
	"github.com/hastinyre/geogle/internal/protocol"
)

func roundsStore() *geodata.Store {
	countries := []*geodata.Country{
		{Code: "de", Name: "Germany", Capital: "Berlin", Continent: "Europe"},
		{Code: "fr", Name: "France", Capital: "Paris", Continent: "Europe"},
		{Code: "jp", Name: "Japan", Capital: "Tokyo", Continent: "Asia"},
		{Code: "xx", Name: "Nocapistan", Continent: "Asia"},
	}
	languages := []*geodata.Language{
		{Code: "deu", Name: "German"},
		{Code: "fra", Name: "French"},
	}
	return geodata.NewStore(countries, languages, map[string]string{"deutschland": "Germany"}, []string{"Room"})
}

func TestBuildRoundsSampleSizeAndUniqueness(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rounds := BuildRounds(roundsStore(), protocol.Settings{Rounds: 10, GameType: "flags"}, rng)

	require.Len(t, rounds, 4, "pool caps the round count")
	seen := map[string]bool{}
	for _, r := range rounds {
		assert.Equal(t, RoundFlag, r.Type)
		assert.False(t, seen[r.Target], "no subject repeats")
		seen[r.Target] = true
	}
}

func TestBuildRoundsContinentFilter(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rounds := BuildRounds(roundsStore(), protocol.Settings{Rounds: 10, GameType: "maps", Continents: []string{"Asia"}}, rng)

	require.Len(t, rounds, 2)
	for _, r := range rounds {
		assert.Equal(t, RoundMap, r.Type)
		assert.Contains(t, []string{"Japan", "Nocapistan"}, r.Target)
		assert.Contains(t, r.AssetPath, "maps/")
	}
}

func TestBuildRoundsEmptyPool(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rounds := BuildRounds(roundsStore(), protocol.Settings{Rounds: 5, GameType: "flags", Continents: []string{"Atlantis"}}, rng)
	assert.Nil(t, rounds)
}

func TestCapitalRoundFallsBackWithoutCapital(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rounds := BuildRounds(roundsStore(), protocol.Settings{Rounds: 10, GameType: "capitals"}, rng)

	require.Len(t, rounds, 4)
	for _, r := range rounds {
		if r.Type == RoundCapital {
			assert.NotEmpty(t, r.Prompt, "capital rounds carry the country as prompt")
			assert.Contains(t, []string{"Berlin", "Paris", "Tokyo"}, r.Target)
		} else {
			assert.Equal(t, RoundFlag, r.Type, "capital-less country falls back to a flag round")
			assert.Equal(t, "Nocapistan", r.Target)
		}
	}
}

func TestLanguageRounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rounds := BuildRounds(roundsStore(), protocol.Settings{Rounds: 10, GameType: "languages"}, rng)

	require.Len(t, rounds, 2)
	for _, r := range rounds {
		assert.Equal(t, RoundLanguage, r.Type)
		assert.Contains(t, []string{"German", "French"}, r.Target)
		assert.Contains(t, r.AssetPath, "languages/")
	}
}

func TestSynonymsAttachedToRound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rounds := BuildRounds(roundsStore(), protocol.Settings{Rounds: 10, GameType: "flags"}, rng)

	for _, r := range rounds {
		if r.Target == "Germany" {
			assert.Equal(t, []string{"deutschland"}, r.Synonyms)
		}
	}
}
