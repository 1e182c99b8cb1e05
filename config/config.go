package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/viper"
)

const (
	CatalogSourceSifi     = "sifi"
	CatalogSourceOneClick = "oneclick"
)

// ChainConfig holds the connection settings of one EVM chain
type ChainConfig struct {
	ChainID     uint64
	RPCUrl      string
	ExplorerURL string
	GasPrice    *int64  // optional fixed gas price in wei
	GasLimit    *uint64 // optional fixed gas limit
}

type chainEntry struct {
	ChainID     uint64  `mapstructure:"chain_id"`
	RPCUrl      string  `mapstructure:"rpc_url"`
	ExplorerURL string  `mapstructure:"explorer_url"`
	GasPrice    *int64  `mapstructure:"gas_price"`
	GasLimit    *uint64 `mapstructure:"gas_limit"`
}

// TokenCacheConfig configures where token lists are cached between runs
type TokenCacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// Config holds the application configuration
type Config struct {
	BaseURL         string
	CatalogSource   string
	OneClickJWT     string
	PrivateKey      string
	ApprovalTimeout time.Duration
	Slippage        float64
	LogLevel        string
	ReferrerFile    string
	TokenCache      TokenCacheConfig
	Chains          map[uint64]ChainConfig
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".sifi-swap")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	cfg, err := load(v)
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// LoadFile reads configuration from an explicit file plus the environment
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	cfg, err := load(v)
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func load(v *viper.Viper) (*Config, error) {
	// Set default values
	v.SetDefault("base_url", "https://api.sifi.org/v1/")
	v.SetDefault("catalog_source", CatalogSourceSifi)
	v.SetDefault("approval_timeout", "5m")
	v.SetDefault("slippage", 0.005)
	v.SetDefault("log_level", "info")
	v.SetDefault("token_cache.ttl", "1h")

	// Read from environment variables
	v.SetEnvPrefix("SIFI_SWAP")
	v.AutomaticEnv()

	// Read config file (optional when searched for)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		BaseURL:         v.GetString("base_url"),
		CatalogSource:   v.GetString("catalog_source"),
		OneClickJWT:     v.GetString("oneclick_jwt"),
		PrivateKey:      v.GetString("private_key"),
		ApprovalTimeout: v.GetDuration("approval_timeout"),
		Slippage:        v.GetFloat64("slippage"),
		LogLevel:        v.GetString("log_level"),
		ReferrerFile:    v.GetString("referrer_file"),
		TokenCache: TokenCacheConfig{
			RedisAddr:     v.GetString("token_cache.redis_addr"),
			RedisPassword: v.GetString("token_cache.redis_password"),
			RedisDB:       v.GetInt("token_cache.redis_db"),
			TTL:           v.GetDuration("token_cache.ttl"),
		},
		Chains: make(map[uint64]ChainConfig),
	}

	var chains []chainEntry
	if err := v.UnmarshalKey("chains", &chains); err != nil {
		return nil, fmt.Errorf("failed to parse chains: %w", err)
	}
	for _, entry := range chains {
		if entry.ChainID == 0 {
			return nil, fmt.Errorf("chain entry without chain_id")
		}
		if _, dup := cfg.Chains[entry.ChainID]; dup {
			return nil, fmt.Errorf("chain %d configured twice", entry.ChainID)
		}
		cfg.Chains[entry.ChainID] = ChainConfig(entry)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that can never work
func (c *Config) Validate() error {
	switch c.CatalogSource {
	case CatalogSourceSifi, CatalogSourceOneClick:
	default:
		return fmt.Errorf("unknown catalog_source %q, expected %q or %q", c.CatalogSource, CatalogSourceSifi, CatalogSourceOneClick)
	}

	if c.Slippage <= 0 || c.Slippage >= 1 {
		return fmt.Errorf("slippage must be a fraction between 0 and 1, got %v", c.Slippage)
	}

	if c.ApprovalTimeout <= 0 {
		return fmt.Errorf("approval_timeout must be positive")
	}

	for id, chain := range c.Chains {
		if chain.RPCUrl == "" {
			return fmt.Errorf("RPC URL not configured for chain %d", id)
		}
	}

	return nil
}

// Chain returns the configuration of a chain
func (c *Config) Chain(chainID uint64) (ChainConfig, error) {
	chain, ok := c.Chains[chainID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("chain %d not configured. Add it under chains in ~/.sifi-swap.yaml", chainID)
	}
	return chain, nil
}

// ChainIDs returns the configured chain ids in ascending order
func (c *Config) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Chains))
	for id := range c.Chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReferrerPath returns where referral data is stored
func (c *Config) ReferrerPath() (string, error) {
	if c.ReferrerFile != "" {
		return c.ReferrerFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".sifi-swap-referrer.json"), nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
