// internal/geodata/geodata.go

// Package geodata loads the static reference tables (countries,
// languages, synonyms, lobby display names) the quiz core reads. The
// resulting Store is immutable after Load and safe to share across all
// lobby actors without locking.
package geodata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hastinyre/geogle/internal/fuzzy"
)

// Country is one quiz subject. Normalized fields are precomputed once
// at load time.
type Country struct {
	Code      string   `json:"code"`
	Name      string   `json:"name"`
	Capital   string   `json:"capital,omitempty"`
	Continent string   `json:"continent,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Flag4x3   string   `json:"flag_4x3,omitempty"`

	NormalizedName string   `json:"-"`
	Tokens         []string `json:"-"`
}

// Language is a subject for language-identification rounds.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Store holds all reference data. Read-only after construction.
type Store struct {
	Countries []*Country
	Languages []*Language

	// Synonyms maps a normalized alternate spelling to the canonical
	// display name it stands for ("usa" -> "United States").
	Synonyms map[string]string

	// ContinentCounts maps continent name to the number of countries in
	// it, plus an "all" total, so clients can cap round-count pickers.
	ContinentCounts map[string]int

	// LobbyNames is the pool of randomized lobby display names.
	LobbyNames []string

	byCode map[string]*Country
}

// NewStore builds a Store from raw tables, precomputing normalized
// forms and continent counts. Synonym keys are normalized here so
// lookups can use fuzzy.Normalize output directly.
func NewStore(countries []*Country, languages []*Language, synonyms map[string]string, lobbyNames []string) *Store {
	s := &Store{
		Countries:       countries,
		Languages:       languages,
		Synonyms:        make(map[string]string, len(synonyms)),
		ContinentCounts: map[string]int{"all": 0},
		LobbyNames:      lobbyNames,
		byCode:          make(map[string]*Country, len(countries)),
	}
	for alt, canonical := range synonyms {
		s.Synonyms[fuzzy.Normalize(alt)] = canonical
	}
	for _, c := range countries {
		c.NormalizedName = fuzzy.Normalize(c.Name)
		c.Tokens = fuzzy.Tokens(c.Name)
		cont := c.Continent
		if cont == "" {
			cont = "Other"
		}
		s.ContinentCounts[cont]++
		s.ContinentCounts["all"]++
		s.byCode[c.Code] = c
	}
	return s
}

// Load reads country.json, languages.json, synonyms.json and
// lobbyNames.json from dir. languages.json and lobbyNames.json are
// optional; countries and synonyms are required.
func Load(dir string) (*Store, error) {
	var countries []*Country
	if err := readJSON(filepath.Join(dir, "country.json"), &countries); err != nil {
		return nil, fmt.Errorf("load countries: %w", err)
	}

	synonyms := map[string]string{}
	if err := readJSON(filepath.Join(dir, "synonyms.json"), &synonyms); err != nil {
		return nil, fmt.Errorf("load synonyms: %w", err)
	}

	var languages []*Language
	if err := readJSON(filepath.Join(dir, "languages.json"), &languages); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load languages: %w", err)
		}
	}

	var lobbyNames []string
	if err := readJSON(filepath.Join(dir, "lobbyNames.json"), &lobbyNames); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load lobby names: %w", err)
		}
	}
	if len(lobbyNames) == 0 {
		lobbyNames = []string{"Lobby"}
	}

	return NewStore(countries, languages, synonyms, lobbyNames), nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ByCode returns the country with the given ISO code, if known.
func (s *Store) ByCode(code string) (*Country, bool) {
	c, ok := s.byCode[code]
	return c, ok
}

// FilterByContinent returns the countries whose continent is in filter.
// An empty filter returns every country. The returned slice is a fresh
// copy; callers may shuffle it.
func (s *Store) FilterByContinent(filter []string) []*Country {
	if len(filter) == 0 {
		out := make([]*Country, len(s.Countries))
		copy(out, s.Countries)
		return out
	}
	allowed := make(map[string]struct{}, len(filter))
	for _, f := range filter {
		allowed[f] = struct{}{}
	}
	var out []*Country
	for _, c := range s.Countries {
		if _, ok := allowed[c.Continent]; ok {
			out = append(out, c)
		}
	}
	return out
}

// SynonymsFor returns all normalized alternate spellings that map to
// the given canonical display name. Used so clients can run the same
// optimistic match locally during a round.
func (s *Store) SynonymsFor(canonical string) []string {
	var out []string
	for alt, name := range s.Synonyms {
		if name == canonical {
			out = append(out, alt)
		}
	}
	return out
}
