package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"BOOKMARK_SYNC_DATA_DIR",
		"BOOKMARK_SYNC_DB",
		"BOOKMARK_SYNC_MAPPING",
		"BOOKMARK_SYNC_ACCOUNTS",
		"SYNC_INTERVAL",
		"WATCH_LOCAL",
		"WATCH_DEBOUNCE",
		"ENVIRONMENT",
		"LOG_FILE",
		"LOG_MAX_SIZE_MB",
		"LOG_MAX_BACKUPS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("BOOKMARK_SYNC_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "bookmarks.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(dir, "mapping.db"), cfg.MappingPath)
	assert.Equal(t, filepath.Join(dir, "accounts.yaml"), cfg.AccountsFile)
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
	assert.True(t, cfg.WatchLocal)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("BOOKMARK_SYNC_DATA_DIR", dir)
	t.Setenv("BOOKMARK_SYNC_DB", filepath.Join(dir, "other.db"))
	t.Setenv("SYNC_INTERVAL", "30m")
	t.Setenv("WATCH_LOCAL", "false")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "other.db"), cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.SyncInterval)
	assert.False(t, cfg.WatchLocal)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_RejectsShortInterval(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("BOOKMARK_SYNC_DATA_DIR", t.TempDir())
	t.Setenv("SYNC_INTERVAL", "10s")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsZeroDebounceWithWatch(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("BOOKMARK_SYNC_DATA_DIR", t.TempDir())
	t.Setenv("WATCH_DEBOUNCE", "0s")

	_, err := Load()
	assert.Error(t, err)
}

func writeAccounts(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAccounts(t *testing.T) {
	path := writeAccounts(t, `
accounts:
  - id: personal
    backend: memory
    http_only: true
  - id: work
    backend: memory
    local_root: folder-42
`)

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "personal", accounts[0].ID)
	assert.True(t, accounts[0].HTTPOnly)
	assert.Empty(t, accounts[0].LocalRoot)

	assert.Equal(t, "work", accounts[1].ID)
	assert.Equal(t, "folder-42", accounts[1].LocalRoot)
}

func TestLoadAccounts_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "empty",
			content: "accounts: []",
		},
		{
			name: "missing id",
			content: `
accounts:
  - backend: memory
`,
		},
		{
			name: "missing backend",
			content: `
accounts:
  - id: personal
`,
		},
		{
			name: "duplicate id",
			content: `
accounts:
  - id: personal
    backend: memory
  - id: personal
    backend: memory
`,
		},
		{
			name:    "not yaml",
			content: "{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAccounts(writeAccounts(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadAccounts_MissingFile(t *testing.T) {
	_, err := LoadAccounts(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
