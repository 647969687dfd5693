package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all environment-based configuration for bookmark-sync.
type Config struct {
	// DataDir is the base directory for all local state. Defaults to
	// ~/.bookmark-sync.
	DataDir string `env:"BOOKMARK_SYNC_DATA_DIR"`

	// DBPath is the SQLite local bookmark store. Defaults to
	// <DataDir>/bookmarks.db.
	DBPath string `env:"BOOKMARK_SYNC_DB"`

	// MappingPath is the bbolt id-mapping database. Defaults to
	// <DataDir>/mapping.db.
	MappingPath string `env:"BOOKMARK_SYNC_MAPPING"`

	// AccountsFile declares the sync accounts. Defaults to
	// <DataDir>/accounts.yaml.
	AccountsFile string `env:"BOOKMARK_SYNC_ACCOUNTS"`

	// SyncInterval is the periodic pass cadence.
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"15m"`

	// WatchLocal triggers a pass when the local store file changes.
	WatchLocal bool `env:"WATCH_LOCAL" envDefault:"true"`

	// WatchDebounce coalesces bursts of local changes into one pass.
	WatchDebounce time.Duration `env:"WATCH_DEBOUNCE" envDefault:"5s"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogFile, when set, routes logs to a size-rotated file instead of
	// stdout.
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"20"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}

		cfg.DataDir = filepath.Join(home, ".bookmark-sync")
	}

	// Paths are resolved to absolute at startup so watcher events can be
	// compared against them reliably.
	absDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir to absolute path: %w", err)
	}

	cfg.DataDir = absDir

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "bookmarks.db")
	}

	if cfg.MappingPath == "" {
		cfg.MappingPath = filepath.Join(cfg.DataDir, "mapping.db")
	}

	if cfg.AccountsFile == "" {
		cfg.AccountsFile = filepath.Join(cfg.DataDir, "accounts.yaml")
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.SyncInterval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1m, got %s", c.SyncInterval)
	}

	if c.WatchLocal && c.WatchDebounce <= 0 {
		return fmt.Errorf("WATCH_DEBOUNCE must be positive when WATCH_LOCAL is enabled")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AccountSpec is one account declaration from the accounts file.
type AccountSpec struct {
	ID string `yaml:"id"`

	// LocalRoot is the local folder id the account syncs. Empty means
	// the store root.
	LocalRoot string `yaml:"local_root"`

	// Backend selects the remote implementation.
	Backend string `yaml:"backend"`

	// HTTPOnly restricts the remote to http(s) URLs.
	HTTPOnly bool `yaml:"http_only"`
}

type accountsFile struct {
	Accounts []AccountSpec `yaml:"accounts"`
}

// LoadAccounts parses the accounts declaration file.
func LoadAccounts(path string) ([]AccountSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading accounts file: %w", err)
	}

	var f accountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing accounts file: %w", err)
	}

	if len(f.Accounts) == 0 {
		return nil, fmt.Errorf("accounts file declares no accounts")
	}

	seen := make(map[string]struct{}, len(f.Accounts))

	for i, a := range f.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account %d has no id", i+1)
		}

		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("duplicate account id %q", a.ID)
		}

		seen[a.ID] = struct{}{}

		if a.Backend == "" {
			return nil, fmt.Errorf("account %q has no backend", a.ID)
		}
	}

	return f.Accounts, nil
}
