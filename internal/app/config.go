package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/tradepost/tradepost/internal/database"
	"github.com/tradepost/tradepost/pkg/mail"
)

// Config is the full runtime configuration, loaded from an optional YAML
// file plus TRADEPOST_-prefixed environment variables.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     database.Config    `mapstructure:"database"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Verification VerificationConfig `mapstructure:"verification"`
	SMTP         mail.SMTPSettings  `mapstructure:"smtp"`
	RateLimit    RateLimitSettings  `mapstructure:"rate_limit"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// Address returns the host:port string for the listener.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
}

// VerificationConfig controls the lifetimes of short-lived secrets.
type VerificationConfig struct {
	CodeTTL        time.Duration `mapstructure:"code_ttl"`
	ResetTokenTTL  time.Duration `mapstructure:"reset_token_ttl"`
	EmailChangeTTL time.Duration `mapstructure:"email_change_ttl"`
}

// RateLimitSettings bounds request volume on the API.
type RateLimitSettings struct {
	AuthLimit  int64         `mapstructure:"auth_limit"`
	AuthWindow time.Duration `mapstructure:"auth_window"`
	APILimit   int64         `mapstructure:"api_limit"`
	APIWindow  time.Duration `mapstructure:"api_window"`
}

// PaymentConfig selects the payment gateway.
type PaymentConfig struct {
	Provider string `mapstructure:"provider"`
}

// MaintenanceConfig controls the background cleanup jobs.
type MaintenanceConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	StaleOrderAge  time.Duration `mapstructure:"stale_order_age"`
	CleanupSpec    string        `mapstructure:"cleanup_spec"`
	StaleOrderSpec string        `mapstructure:"stale_order_spec"`
}

// LoadConfig reads configuration from the given file (optional) and the
// environment. Environment variables use the TRADEPOST_ prefix with dots
// replaced by underscores, e.g. TRADEPOST_DATABASE_DRIVER.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/tradepost.db")
	// Empty defaults register the keys so environment-only values reach
	// Unmarshal.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "tradepost")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "720h")

	v.SetDefault("verification.code_ttl", "10m")
	v.SetDefault("verification.reset_token_ttl", "15m")
	v.SetDefault("verification.email_change_ttl", "24h")

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.use_tls", true)
	v.SetDefault("smtp.timeout", "10s")

	v.SetDefault("rate_limit.auth_limit", 10)
	v.SetDefault("rate_limit.auth_window", "1m")
	v.SetDefault("rate_limit.api_limit", 120)
	v.SetDefault("rate_limit.api_window", "1m")

	v.SetDefault("payment.provider", "mock")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.stale_order_age", "24h")
	v.SetDefault("maintenance.cleanup_spec", "@hourly")
	v.SetDefault("maintenance.stale_order_spec", "@daily")

	v.SetEnvPrefix("TRADEPOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("config: auth.jwt_secret is required (TRADEPOST_AUTH_JWT_SECRET)")
	}

	return &cfg, nil
}
