package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Relay  RelayConfig
	Client ClientConfig
	Log    LogConfig
}

type RelayConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	RateLimit      float64
	RateLimitBurst int
	// OriginPatterns are the browser origins allowed to open sockets.
	OriginPatterns []string
}

type ClientConfig struct {
	ServerURL      string
	PingInterval   time.Duration
	ReconnectDelay time.Duration
	PrefsDSN       string
	CatalogPath    string
	Locale         string
}

type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay.addr", ":8080")
	v.SetDefault("relay.readtimeout", "60s")
	v.SetDefault("relay.writetimeout", "10s")
	v.SetDefault("relay.pinginterval", "10s")
	v.SetDefault("relay.maxmessagesize", 1<<20)
	v.SetDefault("relay.ratelimit", 20.0)
	v.SetDefault("relay.ratelimitburst", 40)
	v.SetDefault("relay.originpatterns", []string{})

	v.SetDefault("client.serverurl", "ws://localhost:8080/")
	v.SetDefault("client.pinginterval", "30s")
	v.SetDefault("client.reconnectdelay", "3s")
	v.SetDefault("client.prefsdsn", "file:townsquare.db")
	v.SetDefault("client.catalogpath", "")
	v.SetDefault("client.locale", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads .env, then the YAML file at path (optional), then TOWNSQUARE_*
// environment overrides such as TOWNSQUARE_RELAY_ADDR.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("townsquare")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("log.level", "TOWNSQUARE_LOG_LEVEL", "LOG_LEVEL")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"relay.readTimeout":     c.Relay.ReadTimeout,
		"relay.writeTimeout":    c.Relay.WriteTimeout,
		"relay.pingInterval":    c.Relay.PingInterval,
		"client.pingInterval":   c.Client.PingInterval,
		"client.reconnectDelay": c.Client.ReconnectDelay,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Relay.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.maxMessageSize must be positive"))
	}
	if c.Relay.RateLimit <= 0 || c.Relay.RateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("relay rate limit and burst must be positive"))
	}
	if c.Client.ServerURL == "" {
		errs = append(errs, fmt.Errorf("client.serverUrl is required"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
