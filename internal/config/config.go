// Package config loads runtime configuration for issuer.
//
// Configuration comes from three layers, later layers winning:
// built-in defaults, an optional issuer.yaml config file in the data
// directory, and ISSUER_* environment variables. The resulting Config
// struct is passed explicitly into every component that needs it;
// nothing reads the environment after startup. In particular the
// machine identity used to tag and filter change records is resolved
// exactly once, here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Defaults for the sync engine. These mirror the reference intervals
// the protocol was tuned with; they are configurable but peers do not
// need to agree on them.
const (
	DefaultPollInterval   = 3 * time.Second
	DefaultLockRetries    = 10
	DefaultLockRetryDelay = 500 * time.Millisecond
	DefaultLockStaleAfter = 60 * time.Second
)

// Config holds all runtime settings for an issuer process.
type Config struct {
	// SharedDir is the authoritative location: a directory on a
	// network share reachable by every peer. It holds the master
	// database, the outbox and the merge lock marker.
	SharedDir string

	// DataDir is the per-machine working area holding the local
	// database copy and diagnostic logs.
	DataDir string

	// MachineName identifies this machine in change records and in
	// the merge lock marker. Records tagged with our own name are
	// never replayed locally.
	MachineName string

	// PollInterval is how often the replication loop scans the outbox.
	PollInterval time.Duration

	// Merge lock acquisition tuning.
	LockRetries    int
	LockRetryDelay time.Duration
	LockStaleAfter time.Duration
}

// MasterDBPath is the authoritative database file on the share.
func (c *Config) MasterDBPath() string {
	return filepath.Join(c.SharedDir, "data.db")
}

// LocalDBPath is this machine's working copy of the database.
func (c *Config) LocalDBPath() string {
	return filepath.Join(c.DataDir, "data.db")
}

// OutboxDir is the hidden directory on the share holding change records.
func (c *Config) OutboxDir() string {
	return filepath.Join(c.SharedDir, ".sync_temp")
}

// MergeLockPath is the marker file guarding consolidation.
func (c *Config) MergeLockPath() string {
	return filepath.Join(c.SharedDir, "merge.lock")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SharedDir == "" {
		return fmt.Errorf("shared_dir is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.MachineName == "" {
		return fmt.Errorf("machine_name is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive (got %s)", c.PollInterval)
	}
	return nil
}

// Load builds a Config from defaults, the optional config file and
// the environment. The result is not yet validated: callers layering
// higher-priority sources on top (the CLI flags) apply those first and
// then call Validate themselves.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("issuer")
	v.AutomaticEnv()

	if dataDir := v.GetString("data_dir"); dataDir != "" {
		v.SetConfigName("issuer")
		v.SetConfigType("yaml")
		v.AddConfigPath(dataDir)
		if err := v.ReadInConfig(); err != nil {
			// Missing config file is fine; a broken one is not.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return FromViper(v), nil
}

// FromViper extracts a Config from an already-populated viper instance.
// Split out from Load so tests and the CLI flag layer can feed their
// own instances.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		SharedDir:      v.GetString("shared_dir"),
		DataDir:        v.GetString("data_dir"),
		MachineName:    v.GetString("machine_name"),
		PollInterval:   v.GetDuration("poll_interval"),
		LockRetries:    v.GetInt("lock_retries"),
		LockRetryDelay: v.GetDuration("lock_retry_delay"),
		LockStaleAfter: v.GetDuration("lock_stale_after"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shared_dir", "")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("machine_name", defaultMachineName())
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("lock_retries", DefaultLockRetries)
	v.SetDefault("lock_retry_delay", DefaultLockRetryDelay)
	v.SetDefault("lock_stale_after", DefaultLockStaleAfter)
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".issuer"
	}
	return filepath.Join(base, "issuer")
}

func defaultMachineName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "UnknownPC"
	}
	return host
}
