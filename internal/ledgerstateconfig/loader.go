package ledgerstateconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration in priority order: defaults, then an
// optional config file at path, then LEDGERSTATED_-prefixed environment
// variables. Grounded on the teacher's LoadConfig
// (internal/config/loader.go): a fresh viper.Viper per call, setDefaults
// first, then the file, then env, then Unmarshal.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("LEDGERSTATED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.configPath = path

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// setDefaults matches the memory-backed store and the default cache sizes a
// caller gets from calling ledgerstate.NewStoreRoot directly with no config at all.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "")
	v.SetDefault("store.dsn", "")

	v.SetDefault("cache.entry_size", 0)      // 0 => package default, see cache.go
	v.SetDefault("cache.best_offer_size", 0) // 0 => package default, see cache.go

	v.SetDefault("reserve.base_reserve", 0)      // 0 => ledgerstate.DefaultReservePolicy
	v.SetDefault("reserve.reserve_increment", 0) // 0 => ledgerstate.DefaultReservePolicy
}

func validate(c *Config) error {
	switch c.Store.Backend {
	case "memory":
	case "leveldb":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the leveldb backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want memory, leveldb, or postgres)", c.Store.Backend)
	}
	return nil
}
