package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/retriva-cli/internal/core/domain"
)

func TestNewConfigStore(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	settings, err := store.Load()

	require.NoError(t, err)
	defaults := domain.DefaultSettings()
	assert.Equal(t, defaults.Chunk, settings.Chunk)
	assert.Equal(t, defaults.Embedding.Model, settings.Embedding.Model)
	assert.Equal(t, defaults.Storage.Backend, settings.Storage.Backend)
}

func TestLoad_PartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	config := `
[chunk]
max_chars = 800

[storage]
backend = "sqlite"
path = "/tmp/custom.db"
`
	require.NoError(t, os.WriteFile(store.Path(), []byte(config), 0600))

	settings, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, 800, settings.Chunk.MaxChars)
	// Unset values come from the defaults.
	assert.Equal(t, domain.DefaultSettings().Chunk.MinChars, settings.Chunk.MinChars)
	assert.Equal(t, "/tmp/custom.db", settings.Storage.Path)
	assert.Equal(t, domain.DefaultSettings().Retrieval.TopK, settings.Retrieval.TopK)
}

func TestLoad_InvalidSettingsRejected(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	// min above max cannot be normalised away.
	config := `
[chunk]
min_chars = 2000
max_chars = 100
`
	require.NoError(t, os.WriteFile(store.Path(), []byte(config), 0600))

	_, err = store.Load()

	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestLoad_MalformedTOML(t *testing.T) {
	dir := t.TempDir()
	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte("chunk = {{"), 0600))

	_, err = store.Load()

	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	settings := domain.DefaultSettings()
	settings.Chunk.MaxChars = 1200
	settings.Retrieval.Identifier = domain.WeightProfile{Dense: 0.1, Lexical: 0.2, Pattern: 0.7}

	require.NoError(t, store.Save(&settings))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1200, loaded.Chunk.MaxChars)
	assert.Equal(t, settings.Retrieval.Identifier, loaded.Retrieval.Identifier)
}

func TestSave_RejectsInvalid(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	settings := domain.DefaultSettings()
	settings.Retrieval.Conceptual = domain.WeightProfile{Dense: -1}

	err = store.Save(&settings)

	require.Error(t, err)
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}
