package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "k")

	cfg, err := NewConfig("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 100, cfg.Relay.MaxSymbolsPerClient)
	require.Equal(t, 256, cfg.Relay.ClientQueueSize)
	require.Equal(t, OverflowDisconnect, cfg.Relay.OverflowPolicy)
	require.Equal(t, 30, cfg.Reference.CacheTTLMinutes)
	require.Equal(t, "memory", cfg.Storage.CacheBackend)
	require.Len(t, cfg.EnabledMarkets(), 4)
}

func TestNewConfigEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, `
port: 9000
relay:
  max_symbols_per_client: 10
  overflow_policy: drop_oldest
upstream:
  api_key: from-yaml
  markets: [stocks, crypto]
`)
	t.Setenv("POLYGON_API_KEY", "from-env")
	t.Setenv("MAX_SYMBOLS_PER_CLIENT", "25")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := NewConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "from-env", cfg.Upstream.APIKey)
	require.Equal(t, 25, cfg.Relay.MaxSymbolsPerClient)
	require.Equal(t, OverflowDropOldest, cfg.Relay.OverflowPolicy)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	require.Len(t, cfg.EnabledMarkets(), 2)
}

func TestNewConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "k")

	cfg, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "market-relay", cfg.Name)
}

func TestNewConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "")

	_, err := NewConfig("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"port":     func(c *Config) { c.Port = 80 },
		"max":      func(c *Config) { c.Relay.MaxSymbolsPerClient = 0 },
		"overflow": func(c *Config) { c.Relay.OverflowPolicy = "block" },
		"market":   func(c *Config) { c.Upstream.Markets = []string{"futures"} },
		"backend":  func(c *Config) { c.Storage.CacheBackend = "etcd" },
		"postgres": func(c *Config) { c.Storage.CacheBackend = "postgres" },
		"backoff":  func(c *Config) { c.Upstream.ReconnectMaxMs = 10 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := &Config{MConfig: Default()}
			c.Upstream.APIKey = "k"
			require.NoError(t, c.Validate())
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	c := &Config{MConfig: Default()}
	c.Upstream.APIKey = "saved"
	c.Port = 9100
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, c.Save(path))

	t.Setenv("POLYGON_API_KEY", "saved")
	loaded, err := NewConfig(path)
	require.NoError(t, err)
	require.Equal(t, 9100, loaded.Port)
}
