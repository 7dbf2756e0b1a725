// Package config loads indexer configuration from environment variables,
// following the SECTION_KEY naming convention of spec §6, with an
// optional YAML file loaded first and overridden by the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChainFamily identifies which adapter family serves a chain.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilyCosmos ChainFamily = "cosmos"
)

// ChainConfig holds the per-chain adapter settings of spec §6
// (`chains.<name>.*`).
type ChainConfig struct {
	Name            string
	Family          ChainFamily
	RPCURL          string
	ChainID         string
	StartBlock      uint64
	BatchSize       uint64
	PollingInterval time.Duration
	FinalityBlocks  uint64
}

// Config holds all configuration recognized by the indexer process.
type Config struct {
	// api.*
	APIHost           string
	APIPort           int
	EnableHTTP        bool
	EnableGraphQL     bool
	EnableWebSocket   bool

	// storage.*
	FastStorePath        string
	FastStoreBackend     string // "goleveldb" or "badgerdb"
	RichStoreURL         string
	RichStoreMaxConns    int
	RichStoreMigrate     bool

	// chains.*
	Chains map[string]ChainConfig

	// logging.*
	LogLevel   string
	LogFile    string
	LogConsole bool

	// metrics.*
	MetricsEnable bool
	MetricsHost   string
	MetricsPort   int

	// reorg/pipeline tuning, not named explicitly in spec §6 but required
	// to parameterize §4.3/§4.5 algorithms
	DeepReorgDepth   uint64
	MaxRetries       int
	BatchSizeDefault uint64

	// correlator tuning (spec §4.6)
	MessageTimeout    time.Duration
	OriginationGrace  time.Duration
	RingBufferSize    int
}

// Load reads configuration from an optional YAML file (if path is
// non-empty) and then applies environment variable overrides, which
// always win over file values, per spec §6.
func Load(yamlPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		b, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", yamlPath, err)
		}
		var fileCfg fileConfig
		if err := yaml.Unmarshal(b, &fileCfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
		}
		fileCfg.apply(cfg)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		APIHost:          "0.0.0.0",
		APIPort:          8080,
		EnableHTTP:       true,
		FastStorePath:    "./data/faststore",
		FastStoreBackend: "goleveldb",
		RichStoreMaxConns: 25,
		Chains:           map[string]ChainConfig{},
		LogLevel:         "info",
		LogConsole:       true,
		MetricsHost:      "0.0.0.0",
		MetricsPort:      9090,
		DeepReorgDepth:   1024,
		MaxRetries:       3,
		BatchSizeDefault: 100,
		MessageTimeout:   30 * time.Minute,
		OriginationGrace: 2 * time.Minute,
		RingBufferSize:   10_000,
	}
}

// Validate checks required fields are present and internally consistent.
func (c *Config) Validate() error {
	if c.FastStorePath == "" {
		return fmt.Errorf("config: storage.fast_store_path is required")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("config: at least one chain must be configured")
	}
	for name, cc := range c.Chains {
		if cc.RPCURL == "" {
			return fmt.Errorf("config: chains.%s.rpc_url is required", name)
		}
		if cc.Family != FamilyEVM && cc.Family != FamilyCosmos {
			return fmt.Errorf("config: chains.%s has unknown family %q", name, cc.Family)
		}
	}
	return nil
}

// fileConfig mirrors the YAML document shape; kept separate from Config
// so the environment-override pass can stay a flat key/value walk.
type fileConfig struct {
	API struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		EnableHTTP      bool   `yaml:"enable_http"`
		EnableGraphQL   bool   `yaml:"enable_graphql"`
		EnableWebSocket bool   `yaml:"enable_websocket"`
	} `yaml:"api"`
	Storage struct {
		FastStorePath     string `yaml:"fast_store_path"`
		FastStoreBackend  string `yaml:"fast_store_backend"`
		RichStoreURL      string `yaml:"rich_store_url"`
		RichStoreMaxConns int    `yaml:"rich_store_max_connections"`
		RichStoreMigrate  bool   `yaml:"rich_store_migrate"`
	} `yaml:"storage"`
	Chains  map[string]yamlChain `yaml:"chains"`
	Logging struct {
		Level   string `yaml:"level"`
		File    string `yaml:"file"`
		Console bool   `yaml:"console"`
	} `yaml:"logging"`
	Metrics struct {
		Enable bool   `yaml:"enable"`
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
	} `yaml:"metrics"`
}

type yamlChain struct {
	Family          string `yaml:"family"`
	RPCURL          string `yaml:"rpc_url"`
	ChainID         string `yaml:"chain_id"`
	StartBlock      uint64 `yaml:"start_block"`
	BatchSize       uint64 `yaml:"batch_size"`
	PollingIntervalMS int64 `yaml:"polling_interval_ms"`
	FinalityBlocks  uint64 `yaml:"finality_blocks"`
}

func (f *fileConfig) apply(cfg *Config) {
	if f.API.Host != "" {
		cfg.APIHost = f.API.Host
	}
	if f.API.Port != 0 {
		cfg.APIPort = f.API.Port
	}
	cfg.EnableHTTP = f.API.EnableHTTP
	cfg.EnableGraphQL = f.API.EnableGraphQL
	cfg.EnableWebSocket = f.API.EnableWebSocket

	if f.Storage.FastStorePath != "" {
		cfg.FastStorePath = f.Storage.FastStorePath
	}
	if f.Storage.FastStoreBackend != "" {
		cfg.FastStoreBackend = f.Storage.FastStoreBackend
	}
	cfg.RichStoreURL = f.Storage.RichStoreURL
	if f.Storage.RichStoreMaxConns != 0 {
		cfg.RichStoreMaxConns = f.Storage.RichStoreMaxConns
	}
	cfg.RichStoreMigrate = f.Storage.RichStoreMigrate

	for name, yc := range f.Chains {
		cfg.Chains[name] = ChainConfig{
			Name:            name,
			Family:          ChainFamily(yc.Family),
			RPCURL:          yc.RPCURL,
			ChainID:         yc.ChainID,
			StartBlock:      yc.StartBlock,
			BatchSize:       yc.BatchSize,
			PollingInterval: time.Duration(yc.PollingIntervalMS) * time.Millisecond,
			FinalityBlocks:  yc.FinalityBlocks,
		}
	}

	if f.Logging.Level != "" {
		cfg.LogLevel = f.Logging.Level
	}
	cfg.LogFile = f.Logging.File
	cfg.LogConsole = f.Logging.Console

	cfg.MetricsEnable = f.Metrics.Enable
	if f.Metrics.Host != "" {
		cfg.MetricsHost = f.Metrics.Host
	}
	if f.Metrics.Port != 0 {
		cfg.MetricsPort = f.Metrics.Port
	}
}

// applyEnvOverrides applies SECTION_KEY environment variables on top of
// whatever defaults/file values are already in cfg. Environment
// variables always win, per spec §6.
func applyEnvOverrides(cfg *Config) {
	cfg.APIHost = getEnv("API_HOST", cfg.APIHost)
	cfg.APIPort = getEnvInt("API_PORT", cfg.APIPort)
	cfg.EnableHTTP = getEnvBool("API_ENABLE_HTTP", cfg.EnableHTTP)
	cfg.EnableGraphQL = getEnvBool("API_ENABLE_GRAPHQL", cfg.EnableGraphQL)
	cfg.EnableWebSocket = getEnvBool("API_ENABLE_WEBSOCKET", cfg.EnableWebSocket)

	cfg.FastStorePath = getEnv("STORAGE_FAST_STORE_PATH", cfg.FastStorePath)
	cfg.FastStoreBackend = getEnv("STORAGE_FAST_STORE_BACKEND", cfg.FastStoreBackend)
	cfg.RichStoreURL = getEnv("STORAGE_RICH_STORE_URL", cfg.RichStoreURL)
	cfg.RichStoreMaxConns = getEnvInt("STORAGE_RICH_STORE_MAX_CONNECTIONS", cfg.RichStoreMaxConns)
	cfg.RichStoreMigrate = getEnvBool("STORAGE_RICH_STORE_MIGRATE", cfg.RichStoreMigrate)

	if names := getEnv("CHAINS", ""); names != "" {
		for _, name := range strings.Split(names, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cc := cfg.Chains[name]
			cc.Name = name
			prefix := "CHAIN_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
			cc.Family = ChainFamily(getEnv(prefix+"_FAMILY", string(cc.Family)))
			cc.RPCURL = getEnv(prefix+"_RPC_URL", cc.RPCURL)
			cc.ChainID = getEnv(prefix+"_CHAIN_ID", cc.ChainID)
			cc.StartBlock = uint64(getEnvInt64(prefix+"_START_BLOCK", int64(cc.StartBlock)))
			cc.BatchSize = uint64(getEnvInt64(prefix+"_BATCH_SIZE", int64(cc.BatchSize)))
			if cc.BatchSize == 0 {
				cc.BatchSize = cfg.BatchSizeDefault
			}
			ms := getEnvInt64(prefix+"_POLLING_INTERVAL_MS", cc.PollingInterval.Milliseconds())
			cc.PollingInterval = time.Duration(ms) * time.Millisecond
			if cc.PollingInterval == 0 {
				cc.PollingInterval = 5 * time.Second
			}
			cc.FinalityBlocks = uint64(getEnvInt64(prefix+"_FINALITY_BLOCKS", int64(cc.FinalityBlocks)))
			cfg.Chains[name] = cc
		}
	}

	cfg.LogLevel = getEnv("LOGGING_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOGGING_FILE", cfg.LogFile)
	cfg.LogConsole = getEnvBool("LOGGING_CONSOLE", cfg.LogConsole)

	cfg.MetricsEnable = getEnvBool("METRICS_ENABLE", cfg.MetricsEnable)
	cfg.MetricsHost = getEnv("METRICS_HOST", cfg.MetricsHost)
	cfg.MetricsPort = getEnvInt("METRICS_PORT", cfg.MetricsPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
