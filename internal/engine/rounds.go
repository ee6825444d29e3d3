// internal/engine/rounds.go
package engine

import (
	"fmt"
	"math/rand"

	"github.com/hastinyre/geogle/internal/geodata"
	"github.com/hastinyre/geogle/internal/protocol"
)

// RoundType identifies what a round asks the player to name.
type RoundType string

const (
	RoundFlag     RoundType = "flag"
	RoundMap      RoundType = "map"
	RoundCapital  RoundType = "capital"
	RoundLanguage RoundType = "language"
)

// Round is one immutable, pre-selected question. The full round list is
// drawn once before the first round and never regenerated mid-game.
type Round struct {
	Type      RoundType
	Target    string   // canonical answer, display casing
	Synonyms  []string // normalized alternates for this target
	AssetPath string
	Prompt    string // extra question context (country name for capital rounds)
}

// BuildRounds draws the ordered round list for a game, honoring the
// continent filter and mode selection. Countries are sampled without
// replacement (shuffle + slice), so a pool never repeats within its
// size; a requested category that cannot be served by the drawn subject
// falls back to a flag round instead of stalling.
func BuildRounds(store *geodata.Store, settings protocol.Settings, rng *rand.Rand) []Round {
	if settings.GameType == "languages" && len(store.Languages) > 0 {
		return buildLanguageRounds(store, settings, rng)
	}

	pool := store.FilterByContinent(settings.Continents)
	if len(pool) == 0 {
		return nil
	}
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	count := settings.Rounds
	if count > len(pool) {
		count = len(pool)
	}

	rounds := make([]Round, 0, count)
	for _, c := range pool[:count] {
		rounds = append(rounds, buildCountryRound(store, c, settings.GameType, rng))
	}
	return rounds
}

func buildCountryRound(store *geodata.Store, c *geodata.Country, gameType string, rng *rand.Rand) Round {
	var t RoundType
	switch gameType {
	case "flags":
		t = RoundFlag
	case "maps":
		t = RoundMap
	case "capitals":
		t = RoundCapital
	default: // mixed, or languages with no language table
		if rng.Intn(2) == 0 {
			t = RoundMap
		} else {
			t = RoundFlag
		}
	}

	// A country without capital data cannot serve a capital round;
	// substitute a flag round rather than crash or stall.
	if t == RoundCapital && c.Capital == "" {
		t = RoundFlag
	}

	switch t {
	case RoundMap:
		return Round{
			Type:      RoundMap,
			Target:    c.Name,
			Synonyms:  store.SynonymsFor(c.Name),
			AssetPath: mapAssetPath(c.Code),
		}
	case RoundCapital:
		return Round{
			Type:      RoundCapital,
			Target:    c.Capital,
			Synonyms:  store.SynonymsFor(c.Capital),
			AssetPath: mapAssetPath(c.Code),
			Prompt:    c.Name,
		}
	default:
		return Round{
			Type:      RoundFlag,
			Target:    c.Name,
			Synonyms:  store.SynonymsFor(c.Name),
			AssetPath: flagAssetPath(c),
		}
	}
}

func buildLanguageRounds(store *geodata.Store, settings protocol.Settings, rng *rand.Rand) []Round {
	pool := make([]*geodata.Language, len(store.Languages))
	copy(pool, store.Languages)
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	count := settings.Rounds
	if count > len(pool) {
		count = len(pool)
	}

	rounds := make([]Round, 0, count)
	for _, l := range pool[:count] {
		rounds = append(rounds, Round{
			Type:      RoundLanguage,
			Target:    l.Name,
			Synonyms:  store.SynonymsFor(l.Name),
			AssetPath: fmt.Sprintf("languages/%s.svg", l.Code),
		})
	}
	return rounds
}

func flagAssetPath(c *geodata.Country) string {
	if c.Flag4x3 != "" {
		return c.Flag4x3
	}
	return fmt.Sprintf("flags/4x3/%s.svg", c.Code)
}

func mapAssetPath(code string) string {
	return fmt.Sprintf("maps/%s.svg", code)
}
