// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Payment PaymentConfig `yaml:"payment" mapstructure:"payment"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Resil   ResilConfig   `yaml:"resilience" mapstructure:"resilience"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PaymentConfig configures the unlock pipeline and gateway callback
// verification.
type PaymentConfig struct {
	Currency      string `yaml:"currency" mapstructure:"currency"`
	WebhookSecret string `yaml:"webhook_secret" mapstructure:"webhook_secret"`
	AllowFallback bool   `yaml:"allow_fallback" mapstructure:"allow_fallback"`
	IntentTTLMins int    `yaml:"intent_ttl_mins" mapstructure:"intent_ttl_mins"`
	ReapEverySecs int    `yaml:"reap_every_secs" mapstructure:"reap_every_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RatePerMin     int      `yaml:"rate_per_min" mapstructure:"rate_per_min"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// ResilConfig configures storage retry and circuit breaking.
type ResilConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs      int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs       int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ASSESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("payment.currency", "EUR")
	v.SetDefault("payment.allow_fallback", false)
	v.SetDefault("payment.intent_ttl_mins", 30)
	v.SetDefault("payment.reap_every_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_min", 60)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("resilience.max_attempts", 5)
	v.SetDefault("resilience.base_delay_ms", 100)
	v.SetDefault("resilience.max_delay_ms", 5000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.cooldown_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
