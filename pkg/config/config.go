// Package config loads session configuration from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/fortiblox/seashell/internal/types"
)

// Environment variables that override file settings.
const (
	EnvRPCURL    = "RPC_URL"
	EnvSBFOutDir = "SBF_OUT_DIR"
)

// FeaturesAll activates every known feature gate.
const FeaturesAll = "all"

var (
	// ErrUnknownKey is returned when the file sets a key Config does not define.
	ErrUnknownKey = errors.New("unknown configuration key")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("invalid configuration")
)

// Config is the session configuration.
type Config struct {
	// Memoize writes post-execution accounts back into the store.
	Memoize bool `toml:"memoize"`

	// AllowUninitializedAccounts presents missing accounts as zeroed records.
	AllowUninitializedAccounts bool `toml:"allow_uninitialized_accounts"`

	// ComputeUnitLimit caps each instruction. Zero means the engine default.
	ComputeUnitLimit uint64 `toml:"compute_unit_limit"`

	// ProgramDir is searched for <name>.so program images.
	ProgramDir string `toml:"program_dir"`

	// RPCURLs are the remote fallback endpoints.
	RPCURLs []string `toml:"rpc_urls"`

	// RPCTimeout bounds one remote request.
	RPCTimeout time.Duration `toml:"rpc_timeout"`

	// Scenario is the persisted overlay file. Empty disables persistence.
	Scenario string `toml:"scenario"`

	// LoadSPL deploys the SPL Token, Associated Token and Token-2022 images
	// found in the program directory when the session opens.
	LoadSPL bool `toml:"load_spl"`

	// BaseStorePath selects a BadgerDB base store. Empty keeps it in memory.
	BaseStorePath string `toml:"base_store_path"`

	// JournalPath enables the execution journal.
	JournalPath string `toml:"journal_path"`

	// Features lists feature gate ids to activate, or "all".
	Features []string `toml:"features"`

	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		RPCTimeout: 30 * time.Second,
		Features:   []string{FeaturesAll},
		LogLevel:   "info",
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			meta, err := toml.DecodeFile(path, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			if undecoded := meta.Undecoded(); len(undecoded) > 0 {
				return nil, fmt.Errorf("%w in %s: %s", ErrUnknownKey, path, undecoded[0])
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RPC_URL and SBF_OUT_DIR. RPC_URL may hold
// several comma-separated endpoints.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvRPCURL)); v != "" {
		c.RPCURLs = nil
		for _, url := range strings.Split(v, ",") {
			if url = strings.TrimSpace(url); url != "" {
				c.RPCURLs = append(c.RPCURLs, url)
			}
		}
	}
	if v := strings.TrimSpace(getenv(EnvSBFOutDir)); v != "" {
		c.ProgramDir = v
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := c.FeatureIDs(); err != nil {
		return err
	}
	if c.RPCTimeout < 0 {
		return fmt.Errorf("%w: negative rpc_timeout", ErrInvalid)
	}
	return nil
}

// AllFeatures reports whether the feature list selects every known gate.
func (c *Config) AllFeatures() bool {
	for _, f := range c.Features {
		if f == FeaturesAll {
			return true
		}
	}
	return false
}

// FeatureIDs parses the explicit feature ids. The "all" marker is skipped.
func (c *Config) FeatureIDs() ([]types.Pubkey, error) {
	var ids []types.Pubkey
	for _, f := range c.Features {
		if f == FeaturesAll {
			continue
		}
		id, err := types.PubkeyFromBase58(f)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %q: %v", ErrInvalid, f, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
