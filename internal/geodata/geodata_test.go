// internal/geodata/geodata_test.go
package geodata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCountries() []*Country {
	return []*Country{
		{Code: "de", Name: "Germany", Capital: "Berlin", Continent: "Europe"},
		{Code: "fr", Name: "France", Capital: "Paris", Continent: "Europe"},
		{Code: "jp", Name: "Japan", Capital: "Tokyo", Continent: "Asia"},
		{Code: "aq", Name: "Antarctica"},
	}
}

func TestNewStorePrecomputes(t *testing.T) {
	s := NewStore(sampleCountries(), nil, map[string]string{"Deutschland": "Germany"}, []string{"Room"})

	assert.Equal(t, 4, s.ContinentCounts["all"])
	assert.Equal(t, 2, s.ContinentCounts["Europe"])
	assert.Equal(t, 1, s.ContinentCounts["Asia"])
	assert.Equal(t, 1, s.ContinentCounts["Other"], "missing continent falls into Other")

	de, ok := s.ByCode("de")
	require.True(t, ok)
	assert.Equal(t, "germany", de.NormalizedName)

	// Synonym keys are stored normalized.
	assert.Equal(t, "Germany", s.Synonyms["deutschland"])
	assert.Equal(t, []string{"deutschland"}, s.SynonymsFor("Germany"))
	assert.Empty(t, s.SynonymsFor("France"))
}

func TestFilterByContinent(t *testing.T) {
	s := NewStore(sampleCountries(), nil, map[string]string{}, []string{"Room"})

	all := s.FilterByContinent(nil)
	assert.Len(t, all, 4)
	// The returned slice is a copy; shuffling it must not reorder the store.
	all[0], all[1] = all[1], all[0]
	assert.Equal(t, "de", s.Countries[0].Code)

	europe := s.FilterByContinent([]string{"Europe"})
	assert.Len(t, europe, 2)

	assert.Empty(t, s.FilterByContinent([]string{"Atlantis"}))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "country.json", `[{"code":"de","name":"Germany","capital":"Berlin","continent":"Europe"}]`)
	writeFile(t, dir, "synonyms.json", `{"Deutschland":"Germany"}`)
	writeFile(t, dir, "languages.json", `[{"code":"deu","name":"German"}]`)

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, s.Countries, 1)
	assert.Len(t, s.Languages, 1)
	assert.Equal(t, []string{"Lobby"}, s.LobbyNames, "missing lobbyNames.json falls back to a default")
}

func TestLoadMissingRequiredFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "country.json", `[]`)

	_, err := Load(dir)
	assert.Error(t, err, "synonyms.json is required")
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "country.json", `{not json`)
	writeFile(t, dir, "synonyms.json", `{}`)

	_, err := Load(dir)
	assert.Error(t, err)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
