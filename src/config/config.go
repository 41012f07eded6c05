package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"market-relay/src/models"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

const (
	OverflowDisconnect = "disconnect"
	OverflowDropOldest = "drop_oldest"
)

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// Default returns the configuration used when neither the YAML file nor the
// environment sets a value.
func Default() *models.MConfig {
	return &models.MConfig{
		Name:           "market-relay",
		Host:           "0.0.0.0",
		Port:           8080,
		LogLevel:       "INFO",
		GrpcHost:       "0.0.0.0",
		GrpcPort:       50051,
		AllowedOrigins: []string{"http://localhost:3000"},
		Relay: models.MRelayConfig{
			MaxSymbolsPerClient: 100,
			ThrottleMs:          100,
			ClientQueueSize:     256,
			BroadcastBuffer:     4096,
			OverflowPolicy:      OverflowDisconnect,
		},
		Upstream: models.MUpstreamConfig{
			BaseURL:            "wss://socket.polygon.io",
			ReconnectInitialMs: 1000,
			ReconnectMaxMs:     60000,
			Markets:            []string{"stocks", "options", "crypto", "forex"},
		},
		Reference: models.MReferenceConfig{
			CacheTTLMinutes: 30,
			RequestTimeout:  10,
		},
		Storage: models.MStorageConfig{
			CacheBackend: "memory",
			DBPath:       "relay-cache.db",
			RedisURL:     "redis://localhost:6379/0",
		},
	}
}

// -----------------------------------------------------------------------------

// NewConfig builds the configuration from defaults, the YAML file at
// configPath (skipped when empty or missing), a local .env file and the
// process environment, in that order of precedence.
func NewConfig(configPath string) (*Config, error) {
	modelConfig := Default()

	// 1. Read the YAML file content
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults + environment only
		case err != nil:
			return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, modelConfig); err != nil {
				return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
			}
		}
	}

	// 2. Environment overrides (.env is optional)
	_ = godotenv.Load()
	if err := env.Parse(modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	config := &Config{MConfig: modelConfig}

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort < 0 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}

	// Relay
	if c.Relay.MaxSymbolsPerClient <= 0 {
		return fmt.Errorf("max symbols per client must be greater than 0")
	}
	if c.Relay.ThrottleMs < 0 {
		return fmt.Errorf("throttle cannot be negative")
	}
	if c.Relay.ClientQueueSize <= 0 {
		return fmt.Errorf("client queue size must be greater than 0")
	}
	if c.Relay.BroadcastBuffer <= 0 {
		return fmt.Errorf("broadcast buffer must be greater than 0")
	}
	switch c.Relay.OverflowPolicy {
	case OverflowDisconnect, OverflowDropOldest:
	default:
		return fmt.Errorf("unknown overflow policy %q", c.Relay.OverflowPolicy)
	}

	// Upstream
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("upstream api key cannot be empty (set POLYGON_API_KEY)")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base url cannot be empty")
	}
	if c.Upstream.ReconnectInitialMs <= 0 || c.Upstream.ReconnectMaxMs < c.Upstream.ReconnectInitialMs {
		return fmt.Errorf("invalid reconnect window %d-%dms", c.Upstream.ReconnectInitialMs, c.Upstream.ReconnectMaxMs)
	}
	for _, m := range c.Upstream.Markets {
		if _, err := models.ParseMarket(m); err != nil {
			return fmt.Errorf("upstream markets: %w", err)
		}
	}

	// Reference data
	if c.Reference.CacheTTLMinutes <= 0 {
		return fmt.Errorf("reference cache ttl must be greater than 0")
	}
	if c.Reference.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}

	// Storage
	switch c.Storage.CacheBackend {
	case "memory", "redis":
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Storage.CacheBackend)
	}

	return nil
}

// -----------------------------------------------------------------------------

// EnabledMarkets returns the markets the relay may open upstream connections for.
func (c *Config) EnabledMarkets() []models.Market {
	if len(c.Upstream.Markets) == 0 {
		return models.AllMarkets
	}
	markets := make([]models.Market, 0, len(c.Upstream.Markets))
	for _, m := range c.Upstream.Markets {
		if market, err := models.ParseMarket(m); err == nil {
			markets = append(markets, market)
		}
	}
	return markets
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0600, the file may carry the api key)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
