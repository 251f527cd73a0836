// Package config defines the editor's settings: where trusted metadata and
// private keys live on disk, where to fetch a repository's metadata and
// targets from, how large each role's metadata is allowed to be, and how
// strictly expiry is enforced.
package config

import (
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
)

// ExpirationPolicy controls how the loader reacts to an expired role file.
type ExpirationPolicy string

const (
	// ExpirationStrict rejects any expired role outright.
	ExpirationStrict ExpirationPolicy = "strict"
	// ExpirationLenient accepts an expired non-root role with a logged
	// warning, useful for locally staged (not-yet-published) metadata
	// that has not gone through a full refresh cycle yet.
	ExpirationLenient ExpirationPolicy = "lenient"
)

// defaultLimits mirror the per-role byte caps the loader enforces before
// parsing a fetched file, keyed by role name with "default" covering any
// role not explicitly listed ("targets" and every delegated role).
var defaultLimits = map[string]int64{
	"root":      5 << 20,
	"snapshot":  5 << 20,
	"timestamp": 16 << 10,
	"default":   5 << 20,
}

// Configuration is the top level object every other setting is namespaced
// under, loaded from the editor's config file and overridden by CLI flags
// via viper.
type Configuration struct {
	// TrustDir holds locally cached, verified metadata and the local
	// signing key store, analogous to notary's "~/.notary" tree.
	TrustDir string `json:"trust_dir"`

	// MetadataBaseURL and TargetsBaseURL are the fetch roots for role
	// metadata and target file content respectively. Either may be a
	// "file://" path or an http(s) URL; see tuf/store.NewFetcher.
	MetadataBaseURL string `json:"metadata_base_url"`
	TargetsBaseURL  string `json:"targets_base_url,omitempty"`

	// Limits caps each role's metadata size in bytes before it is even
	// parsed, the same defense httpstore.go's ErrMaliciousServer models.
	Limits map[string]int64 `json:"limits,omitempty"`

	// Expiration governs whether an expired role fails the load outright
	// or is accepted with a warning.
	Expiration ExpirationPolicy `json:"expiration,omitempty"`

	// DefaultExpiry is how far in the future a freshly signed role's
	// expiry is set when the CLI caller does not specify one explicitly.
	DefaultExpiry time.Duration `json:"default_expiry,omitempty"`
}

// Load parses a JSON configuration document, filling in defaults for any
// field the document left zero-valued.
func Load(r io.Reader) (*Configuration, error) {
	conf := Configuration{}
	if err := json.NewDecoder(r).Decode(&conf); err != nil {
		return nil, errors.Wrap(err, "parsing configuration")
	}
	conf.applyDefaults()
	return &conf, nil
}

func (c *Configuration) applyDefaults() {
	if c.Limits == nil {
		c.Limits = make(map[string]int64, len(defaultLimits))
	}
	for role, limit := range defaultLimits {
		if _, ok := c.Limits[role]; !ok {
			c.Limits[role] = limit
		}
	}
	if c.Expiration == "" {
		c.Expiration = ExpirationStrict
	}
	if c.DefaultExpiry == 0 {
		c.DefaultExpiry = 90 * 24 * time.Hour
	}
}

// LimitFor returns the byte cap for role, falling back to the "default"
// entry for any role without its own override.
func (c *Configuration) LimitFor(role string) int64 {
	if n, ok := c.Limits[role]; ok {
		return n
	}
	return c.Limits["default"]
}
