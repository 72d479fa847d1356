// Package config loads the store-layout configuration that the object
// store facade and named lock need: segment width for the local store's
// directory tree, whether RAID-like redundancy is enabled, the remote
// store's base path, and the lock acquisition timeout used by the
// orchestrating layer around reverse-diff.
//
// Config files are JSON-with-comments (JSONC): standardized with hujson,
// then decoded with the standard encoding/json package. Nothing here is
// exercised by the
// reverse-diff engine itself — reverse-diff takes plain Go values — but the
// store and lock constructors that sit in front of it are built from a
// parsed Config.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

// ErrInvalid reports a structurally valid config file whose field values
// violate a constraint (segment length out of range, base path without
// surrounding slashes, and so on).
var ErrInvalid = errors.New("config: invalid value")

// Config holds the store-layout parameters for one account.
type Config struct {
	// StoreRoot is the local store's root directory. Ignored if RAID
	// roots are set.
	StoreRoot string `json:"store_root,omitempty"`

	// RAIDRoots, if non-empty, must contain exactly three directories:
	// two data roots and a parity root. See objectstore.NewLocalStoreRAID.
	RAIDRoots []string `json:"raid_roots,omitempty"`

	// SegmentBits is the number of low bits of an object id reserved for
	// each directory-nesting segment in the local and remote layouts.
	// Zero means the facade's default (objectstore.DefaultSegmentBits).
	SegmentBits uint `json:"segment_bits,omitempty"`

	// RemoteBaseURL is the scheme+host portion of a remote store's URL,
	// e.g. "https://store.example.com". Empty disables the remote
	// backend.
	RemoteBaseURL string `json:"remote_base_url,omitempty"`

	// RemoteBasePath is the remote store's base path. Must begin and end
	// with '/' per the facade contract.
	RemoteBasePath string `json:"remote_base_path,omitempty"`

	// LockTimeout bounds how long the orchestrating layer retries
	// acquiring an account's named lock before giving up. Reverse-diff
	// itself never waits on the lock; this is consumed by the caller
	// that wraps a reverse-diff call in a lock/release pair.
	LockTimeout time.Duration `json:"lock_timeout,omitempty"`
}

// Default returns the configuration used when no config file is present.
func Default() Config {
	return Config{
		LockTimeout: 30 * time.Second,
	}
}

// Load reads and parses the JSONC config file at path, standardizing it to
// JSON with hujson before decoding. A missing file returns [Default]
// unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s is not valid JSONC: %w", path, err)
	}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) validate() error {
	if len(c.RAIDRoots) != 0 && len(c.RAIDRoots) != 3 {
		return fmt.Errorf("%w: raid_roots must have exactly 3 entries, got %d", ErrInvalid, len(c.RAIDRoots))
	}

	if c.SegmentBits > 32 {
		return fmt.Errorf("%w: segment_bits %d is implausibly large", ErrInvalid, c.SegmentBits)
	}

	if c.RemoteBaseURL != "" {
		if c.RemoteBasePath == "" {
			return fmt.Errorf("%w: remote_base_path is required when remote_base_url is set", ErrInvalid)
		}

		if c.RemoteBasePath[0] != '/' || c.RemoteBasePath[len(c.RemoteBasePath)-1] != '/' {
			return fmt.Errorf("%w: remote_base_path %q must begin and end with '/'", ErrInvalid, c.RemoteBasePath)
		}
	}

	return nil
}
