package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Metrics        bool   `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	AccessControl struct {
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Auth struct {
		APIKeyHash      string        `mapstructure:"API_KEY_HASH"`
		RateLimit       int           `mapstructure:"RATE_LIMIT"`
		RateLimitWindow time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
		SignatureMaxAge time.Duration `mapstructure:"SIGNATURE_MAX_AGE"`
	} `mapstructure:"AUTH"`
	Authority struct {
		Key string `mapstructure:"KEY"`
	} `mapstructure:"AUTHORITY"`
	License struct {
		CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`
		EventQueue    string        `mapstructure:"EVENT_QUEUE"`
		RelayInterval time.Duration `mapstructure:"RELAY_INTERVAL"`
		RelayBatch    int           `mapstructure:"RELAY_BATCH"`
	} `mapstructure:"LICENSE"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Consul struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"CONSUL"`
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

// FromEnv picks RemoteModule when REMOTE_CONFIG_PROVIDER is set and Module
// otherwise. Every binary uses it so they read the same source.
func FromEnv() fx.Option {
	if remoteEnabled() {
		return RemoteModule
	}
	return Module
}

func remoteEnabled() bool {
	_, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER")
	return ok
}

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "license-authority")
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("AUTH.RATE_LIMIT", 100)
	v.SetDefault("AUTH.RATE_LIMIT_WINDOW", 15*time.Minute)
	v.SetDefault("AUTH.SIGNATURE_MAX_AGE", 5*time.Minute)
	v.SetDefault("LICENSE.CACHE_TTL", 5*time.Minute)
	v.SetDefault("LICENSE.EVENT_QUEUE", "license-events")
	v.SetDefault("LICENSE.RELAY_INTERVAL", 30*time.Second)
	v.SetDefault("LICENSE.RELAY_BATCH", 100)
	v.SetDefault("SNOWFLAKE.NODE", 1)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"TLS.ENABLE", "TLS.CERT_PATH", "TLS.KEY_PATH",
		"OTEL.ADDR", "OTEL.PROTOCOL", "PYROSCOPE.ADDR",
		"DATABASE.HOST", "DATABASE.PORT", "DATABASE.DBNAME", "DATABASE.USER", "DATABASE.PASSWORD",
		"DATABASE.AUTO_MIGRATE", "DATABASE.METRICS",
		"REDIS.ADDR", "REDIS.PASSWORD", "REDIS.DB",
		"ACCESS_CONTROL.POLICY", "AUTH.API_KEY_HASH", "AUTHORITY.KEY",
		"FLAGSMITH.ADDR", "FLAGSMITH.API_KEY", "CONSUL.ADDR", "SNOWFLAKE.NODE",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate reports configuration the service cannot start without.
func (c *Config) Validate() error {
	if c.Authority.Key == "" {
		return errors.New("AUTHORITY.KEY is required")
	}
	if c.Auth.APIKeyHash == "" {
		return errors.New("AUTH.API_KEY_HASH is required")
	}
	if c.Snowflake.Node < 0 || c.Snowflake.Node > 1023 {
		return fmt.Errorf("SNOWFLAKE.NODE must be between 0 and 1023, got %d", c.Snowflake.Node)
	}
	if c.TLS.Enable && (c.TLS.CertPath == "" || c.TLS.KeyPath == "") {
		return errors.New("tls enabled but TLS.CERT_PATH or TLS.KEY_PATH not provided")
	}
	return nil
}

// Load reads config.yaml from the working directory (when present) and applies
// environment overrides on top of the defaults.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType(configType)
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func LoadConfig(p Params) *Config {
	cfg, err := Load(viper.New())
	if err != nil {
		zap.L().Error("failed to load config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		applyVaultSecrets(p.Vault, cfg)
	}

	if err := cfg.Validate(); err != nil {
		zap.L().Error("invalid config", zap.Error(err))
		os.Exit(1)
	}

	return cfg
}

func applyVaultSecrets(client *vault.Client, cfg *Config) {
	ctx := context.Background()

	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Auth.APIKeyHash = get("api_key_hash", cfg.Auth.APIKeyHash)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
}

// Current returns the latest remote configuration snapshot, or nil when the
// remote provider is not in use.
func Current() *Config {
	cfg, _ := configHolder.Load().(*Config)
	return cfg
}

func LoadRemote(p Params) *Config {
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	remote := viper.New()
	setDefaults(remote)
	remote.SetConfigType(configType)
	if err := remote.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("failed to add remote config provider", zap.Error(err))
		os.Exit(1)
	}

	if err := remote.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := remote.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5)

			if err := remote.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			if err := remote.Unmarshal(&newcfg); err != nil {
				zap.L().Error("unable to decode remote config", zap.Error(err))
				continue
			}
			configHolder.Store(&newcfg)
		}
	}()

	if p.Vault != nil {
		applyVaultSecrets(p.Vault, &cfg)
	}

	if err := cfg.Validate(); err != nil {
		zap.L().Error("invalid config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}
