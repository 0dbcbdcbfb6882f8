package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.Equal(t, "license-authority", cfg.AppName)
	require.Equal(t, "8080", cfg.Server.Addr)
	require.Equal(t, "9090", cfg.Grpc.Addr)
	require.Equal(t, 5*time.Minute, cfg.License.CacheTTL)
	require.Equal(t, "license-events", cfg.License.EventQueue)
	require.Equal(t, 100, cfg.License.RelayBatch)
	require.Equal(t, 100, cfg.Auth.RateLimit)
	require.Equal(t, int64(1), cfg.Snowflake.Node)
}

func TestLoadEnvOverrides(t *testing.T) {
	key := strings.Repeat("ab", 32)
	t.Setenv("AUTHORITY_KEY", key)
	t.Setenv("AUTH_API_KEY_HASH", "$argon2id$stub")
	t.Setenv("HTTP_SERVER_ADDR", "8181")
	t.Setenv("LICENSE_CACHE_TTL", "90s")
	t.Setenv("DATABASE_AUTO_MIGRATE", "true")
	t.Setenv("SNOWFLAKE_NODE", "7")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.Equal(t, key, cfg.Authority.Key)
	require.Equal(t, "$argon2id$stub", cfg.Auth.APIKeyHash)
	require.Equal(t, "8181", cfg.Server.Addr)
	require.Equal(t, 90*time.Second, cfg.License.CacheTTL)
	require.True(t, cfg.Database.AutoMigrate)
	require.Equal(t, int64(7), cfg.Snowflake.Node)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Authority.Key = strings.Repeat("ab", 32)
		c.Auth.APIKeyHash = "hash"
		c.Snowflake.Node = 1
		return c
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"missing authority": func(c *Config) { c.Authority.Key = "" },
		"missing api key":   func(c *Config) { c.Auth.APIKeyHash = "" },
		"snowflake range":   func(c *Config) { c.Snowflake.Node = 1024 },
		"tls without cert":  func(c *Config) { c.TLS.Enable = true },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestRemoteEnabled(t *testing.T) {
	t.Setenv("REMOTE_CONFIG_PROVIDER", "")
	require.NoError(t, os.Unsetenv("REMOTE_CONFIG_PROVIDER"))
	require.False(t, remoteEnabled())

	t.Setenv("REMOTE_CONFIG_PROVIDER", "consul")
	require.True(t, remoteEnabled())
}
