package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestConfig(t *testing.T) *ConfigStore {
	t.Helper()
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNewConfigStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")
	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "config.toml"), store.Path())
	assert.DirExists(t, dir)
}

func TestSetAndGet(t *testing.T) {
	store := setupTestConfig(t)

	require.NoError(t, store.Set(KeyStorageType, "sqlite"))
	require.NoError(t, store.Set("openai.max_retries", 3))
	require.NoError(t, store.Set("verbose", true))

	assert.Equal(t, "sqlite", store.GetString(KeyStorageType))
	assert.Equal(t, 3, store.GetInt("openai.max_retries"))
	assert.True(t, store.GetBool("verbose"))
}

func TestGet_MissingKeys(t *testing.T) {
	store := setupTestConfig(t)

	_, ok := store.Get("nope")
	assert.False(t, ok)
	assert.Equal(t, "", store.GetString("nope"))
	assert.Equal(t, 0, store.GetInt("nope"))
	assert.False(t, store.GetBool("nope"))
}

func TestGet_TypeMismatch(t *testing.T) {
	store := setupTestConfig(t)

	require.NoError(t, store.Set(KeyStorageType, 42))
	assert.Equal(t, "", store.GetString(KeyStorageType))
	assert.False(t, store.GetBool(KeyStorageType))
}

func TestPersistenceAcrossLoads(t *testing.T) {
	dir := t.TempDir()

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyPostgresDSN, "postgres://localhost/lernwelt"))

	reloaded, err := NewConfigStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/lernwelt", reloaded.GetString(KeyPostgresDSN))
}

func TestLoad_FlattensNestedTables(t *testing.T) {
	dir := t.TempDir()
	content := "[storage]\ntype = \"postgres\"\n\n[openai]\napi_key = \"sk-test\"\nmodel = \"gpt-4o\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(dir)
	require.NoError(t, err)

	assert.Equal(t, "postgres", store.GetString(KeyStorageType))
	assert.Equal(t, "sk-test", store.GetString(KeyOpenAIKey))
	assert.Equal(t, "gpt-4o", store.GetString(KeyOpenAIModel))
}

func TestSave_RestrictedPermissions(t *testing.T) {
	store := setupTestConfig(t)
	require.NoError(t, store.Set(KeyOpenAIKey, "sk-secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
