package models

// MConfig Structure
type MConfig struct {
	Name           string           `yaml:"name" env:"RELAY_NAME"`
	Host           string           `yaml:"host" env:"HOST"`
	Port           int              `yaml:"port" env:"PORT"`
	LogLevel       string           `yaml:"log_level" env:"LOG_LEVEL"`
	GrpcHost       string           `yaml:"grpc_host" env:"GRPC_HOST"`
	GrpcPort       int              `yaml:"grpc_port" env:"GRPC_PORT"`
	AllowedOrigins []string         `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	Relay          MRelayConfig     `yaml:"relay"`
	Upstream       MUpstreamConfig  `yaml:"upstream"`
	Reference      MReferenceConfig `yaml:"reference"`
	Storage        MStorageConfig   `yaml:"storage"`
}

type MRelayConfig struct {
	MaxSymbolsPerClient int    `yaml:"max_symbols_per_client" env:"MAX_SYMBOLS_PER_CLIENT"`
	ThrottleMs          int    `yaml:"throttle_ms" env:"THROTTLE_MS"`
	ClientQueueSize     int    `yaml:"client_queue_size" env:"CLIENT_QUEUE_SIZE"`
	BroadcastBuffer     int    `yaml:"broadcast_buffer" env:"BROADCAST_BUFFER"`
	OverflowPolicy      string `yaml:"overflow_policy" env:"OVERFLOW_POLICY"` // "disconnect" or "drop_oldest"
}

type MUpstreamConfig struct {
	APIKey             string   `yaml:"api_key" env:"POLYGON_API_KEY"`
	BaseURL            string   `yaml:"base_url" env:"POLYGON_WS_URL"`
	ReconnectInitialMs int      `yaml:"reconnect_initial_ms"`
	ReconnectMaxMs     int      `yaml:"reconnect_max_ms"`
	EagerConnect       bool     `yaml:"eager_connect" env:"UPSTREAM_EAGER_CONNECT"`
	Markets            []string `yaml:"markets"`
}

type MReferenceConfig struct {
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes" env:"REFERENCE_CACHE_TTL_MINUTES"`
	RequestTimeout  int    `yaml:"timeout" env:"REFERENCE_TIMEOUT"`
	Proxy           string `yaml:"proxy" env:"REFERENCE_PROXY"`
}

type MStorageConfig struct {
	CacheBackend       string `yaml:"cache_backend" env:"CACHE_BACKEND"` // memory, redis, sqlite, postgres
	DBPath             string `yaml:"db_path" env:"DB_PATH"`
	DBConnectionString string `yaml:"db_connection_string" env:"DATABASE_URL"`
	RedisURL           string `yaml:"redis_url" env:"REDIS_URL"`
	RedisPassword      string `yaml:"redis_password" env:"REDIS_PASSWORD"`
}
