package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverHTTP     = "http"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultSecret = "change-me"
)

var (
	ErrMissingBaseURL = errors.New("gateway.base_url is required for the http driver")
	ErrMissingDSN     = errors.New("gateway.dsn is required for database drivers")
	ErrUnknownDriver  = errors.New("unknown gateway driver")
	ErrDefaultSecret  = errors.New("secret must be set in release mode")
)

type GatewayConfig struct {
	Driver  string        `mapstructure:"driver"`
	BaseURL string        `mapstructure:"base_url"`
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RoomsConfig struct {
	GraceWindow time.Duration `mapstructure:"grace_window"`
	Reserved    []string      `mapstructure:"reserved"`
}

type ChatConfig struct {
	MaxLength    int           `mapstructure:"max_length"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	Backpressure string        `mapstructure:"backpressure"`
	Secret       string        `mapstructure:"secret"`
	Gateway      GatewayConfig `mapstructure:"gateway"`
	Rooms        RoomsConfig   `mapstructure:"rooms"`
	Chat         ChatConfig    `mapstructure:"chat"`
}

// Validate enforces the settings the process cannot start without.
func (c *Config) Validate() error {
	switch c.Gateway.Driver {
	case DriverHTTP:
		if c.Gateway.BaseURL == "" {
			return ErrMissingBaseURL
		}
	case DriverSQLite, DriverPostgres:
		if c.Gateway.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Gateway.Driver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Mode == "release" && (c.Secret == "" || c.Secret == defaultSecret) {
		return ErrDefaultSecret
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3333)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("backpressure", "kick")
	v.SetDefault("secret", defaultSecret)
	v.SetDefault("gateway.driver", DriverHTTP)
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.dsn", "")
	v.SetDefault("gateway.timeout", "5s")
	v.SetDefault("rooms.grace_window", "5m")
	v.SetDefault("rooms.reserved", []string{})
	v.SetDefault("chat.max_length", 2000)
	v.SetDefault("chat.rate_limit", 10)
	v.SetDefault("chat.rate_interval", "10s")
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml (or file when set),
// then WATCHPARTY_* environment overrides.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("could not read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	v.SetEnvPrefix("WATCHPARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults and env")
	} else {
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("gateway", cfg.Gateway.Driver).Msg("config ready")
	return &cfg, nil
}
