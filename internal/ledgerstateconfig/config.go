// Package ledgerstateconfig loads the engine's runtime configuration:
// which persistent store backend to open, its connection details, and the
// LRU cache sizes StoreRoot layers in front of it. Grounded on the
// teacher's internal/config package (LoadConfig/setDefaults/Config), scaled
// down to the handful of knobs this engine actually exposes.
package ledgerstateconfig

import "github.com/ledgerforge/coreledger/internal/ledgerstate"

// Config is the fully-resolved configuration for one coreledger process.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Reserve ReserveConfig `mapstructure:"reserve"`

	configPath string
}

// StoreConfig selects and parameterizes the persistent Store backend.
type StoreConfig struct {
	// Backend is one of "memory", "leveldb", "postgres".
	Backend string `mapstructure:"backend"`
	// Path is the LevelDB data directory. Only used when Backend == "leveldb".
	Path string `mapstructure:"path"`
	// DSN is the PostgreSQL connection string. Only used when Backend == "postgres".
	DSN string `mapstructure:"dsn"`
}

// CacheConfig sizes the two LRUs StoreRoot keeps in front of the Store.
// A zero value for either size falls back to the package default in
// internal/ledgerstate/cache.go.
type CacheConfig struct {
	EntrySize     int `mapstructure:"entry_size"`
	BestOfferSize int `mapstructure:"best_offer_size"`
}

// ReserveConfig carries the base and per-subentry reserve amounts used to
// compute an account's minimum balance (the two fields of
// ledgerstate.ReservePolicy).
type ReserveConfig struct {
	BaseReserve      int64 `mapstructure:"base_reserve"`
	ReserveIncrement int64 `mapstructure:"reserve_increment"`
}

// GetConfigPath returns the file this Config was loaded from, or "" if it
// was built entirely from defaults and environment variables.
func (c *Config) GetConfigPath() string { return c.configPath }

// ToPolicy converts a ReserveConfig into a ledgerstate.ReservePolicy. A
// zero-value ReserveConfig (nothing set in the file/env) yields
// ledgerstate.DefaultReservePolicy rather than a policy that reserves
// nothing.
func (r ReserveConfig) ToPolicy() ledgerstate.ReservePolicy {
	if r.BaseReserve == 0 && r.ReserveIncrement == 0 {
		return ledgerstate.DefaultReservePolicy
	}
	return ledgerstate.ReservePolicy{Base: r.BaseReserve, Increment: r.ReserveIncrement}
}
