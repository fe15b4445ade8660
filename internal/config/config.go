// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Starknet   StarknetConfig   `mapstructure:"starknet"`
	Voyager    VoyagerConfig    `mapstructure:"voyager"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// StarknetConfig contains Starknet RPC connection and contract configuration
type StarknetConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	FactoryAddress    string        `mapstructure:"factory_address"`
	TokenAddress      string        `mapstructure:"token_address"`
	FactoryStartBlock uint64        `mapstructure:"factory_start_block"`
	TokenStartBlock   uint64        `mapstructure:"token_start_block"`
}

// VoyagerConfig contains the explorer proxy configuration used for batched
// transaction metadata resolution
type VoyagerConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BatchLimit     int           `mapstructure:"batch_limit"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// CacheConfig contains the durable transaction metadata cache configuration
type CacheConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// AggregatorConfig contains activity feed aggregation configuration
type AggregatorConfig struct {
	PageSize    int           `mapstructure:"page_size"`
	FeedTimeout time.Duration `mapstructure:"feed_timeout"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("MIP_AGGREGATOR")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if rpcURL := os.Getenv("STARKNET_RPC_URL"); rpcURL != "" {
		config.Starknet.RPCURL = rpcURL
	}
	if endpoint := os.Getenv("VOYAGER_ENDPOINT"); endpoint != "" {
		config.Voyager.Endpoint = endpoint
	}
	if cacheURL := os.Getenv("CACHE_URL"); cacheURL != "" {
		config.Cache.ConnectionString = cacheURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "mip-activity-aggregator")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Starknet defaults (Sepolia testnet)
	viper.SetDefault("starknet.rpc_url", "https://starknet-sepolia-rpc.publicnode.com")
	viper.SetDefault("starknet.request_timeout", "30s")
	viper.SetDefault("starknet.retry_attempts", 3)
	viper.SetDefault("starknet.retry_delay", "5s")
	viper.SetDefault("starknet.factory_address", "")
	viper.SetDefault("starknet.token_address", "")
	viper.SetDefault("starknet.factory_start_block", 0)
	viper.SetDefault("starknet.token_start_block", 0)

	// Voyager defaults
	viper.SetDefault("voyager.endpoint", "https://sepolia.voyager.online/api/txns/batch")
	viper.SetDefault("voyager.request_timeout", "15s")
	viper.SetDefault("voyager.batch_limit", 100)
	viper.SetDefault("voyager.cache_ttl", "15m")

	// Cache defaults
	viper.SetDefault("cache.type", "sqlite")
	viper.SetDefault("cache.connection_string", "./data/txmeta.db")
	viper.SetDefault("cache.max_connections", 10)
	viper.SetDefault("cache.max_idle_time", "15m")

	// Aggregator defaults
	viper.SetDefault("aggregator.page_size", 20)
	viper.SetDefault("aggregator.feed_timeout", "30s")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.file", "")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Starknet.RPCURL == "" {
		return fmt.Errorf("starknet.rpc_url is required")
	}
	if c.Starknet.FactoryAddress == "" {
		return fmt.Errorf("starknet.factory_address is required")
	}
	if c.Starknet.TokenAddress == "" {
		return fmt.Errorf("starknet.token_address is required")
	}
	if c.Voyager.Endpoint == "" {
		return fmt.Errorf("voyager.endpoint is required")
	}
	if c.Voyager.BatchLimit <= 0 {
		return fmt.Errorf("voyager.batch_limit must be positive")
	}
	if c.Aggregator.PageSize <= 0 {
		return fmt.Errorf("aggregator.page_size must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}
