// Package config loads process configuration from the environment, with an
// optional .env file for local development. The resulting Config is built once
// in main and passed by value; nothing here is mutated after startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Required environment keys. Health reporting names the missing ones.
const (
	KeyJWTSecret  = "JWT_SECRET"
	KeyRedisURL   = "REDIS_URL"
	KeyRedisToken = "REDIS_TOKEN"
)

type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	AppPort  string `mapstructure:"APP_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	JWTSecret  string        `mapstructure:"JWT_SECRET"`
	JWTIssuer  string        `mapstructure:"JWT_ISSUER"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	RedisURL       string        `mapstructure:"REDIS_URL"`
	RedisToken     string        `mapstructure:"REDIS_TOKEN"`
	RedisTimeout   time.Duration `mapstructure:"REDIS_TIMEOUT"`
	RedisKeyPrefix string        `mapstructure:"REDIS_KEY_PREFIX"`
	RedeemAtomic   bool          `mapstructure:"REDEEM_ATOMIC"`

	// RedeemMaxFailures failed redemptions per client IP are allowed within
	// RedeemFailureWindow. Zero disables the throttle.
	RedeemMaxFailures   int           `mapstructure:"REDEEM_MAX_FAILURES"`
	RedeemFailureWindow time.Duration `mapstructure:"REDEEM_FAILURE_WINDOW"`

	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed when resolving the client IP. Empty trusts none and
	// the peer address is used.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	MetricsAddr        string   `mapstructure:"METRICS_ADDR"`
	AuditBuffer        int      `mapstructure:"AUDIT_BUFFER"`
}

var defaults = map[string]any{
	"APP_ENV":               "development",
	"APP_PORT":              "8080",
	"LOG_LEVEL":             "info",
	"SESSION_TTL":           "1440h",
	"REDIS_TIMEOUT":         "2s",
	"REDIS_KEY_PREFIX":      "magic_link_token:",
	"REDEEM_ATOMIC":         true,
	"REDEEM_MAX_FAILURES":   10,
	"REDEEM_FAILURE_WINDOW": "15m",
	"AUDIT_BUFFER":          256,
}

// Keys without defaults still have to be known to viper for Unmarshal to see
// them through AutomaticEnv.
var bound = []string{
	KeyJWTSecret,
	"JWT_ISSUER",
	KeyRedisURL,
	KeyRedisToken,
	"TRUSTED_PROXIES",
	"CORS_ALLOWED_ORIGINS",
	"METRICS_ADDR",
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(viper.New())
}

// FromViper applies defaults and environment binding to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range bound {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("config: SESSION_TTL must be positive, got %s", cfg.SessionTTL)
	}
	if cfg.RedisTimeout <= 0 {
		return nil, fmt.Errorf("config: REDIS_TIMEOUT must be positive, got %s", cfg.RedisTimeout)
	}
	cfg.CORSAllowedOrigins = compact(cfg.CORSAllowedOrigins)
	cfg.TrustedProxies = compact(cfg.TrustedProxies)

	return &cfg, nil
}

// Production reports whether cookies must carry the Secure attribute.
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.AppPort
}

// Missing lists required keys that are empty. Values are never returned.
func (c *Config) Missing() []string {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, KeyJWTSecret)
	}
	if c.RedisURL == "" {
		missing = append(missing, KeyRedisURL)
	}
	if c.RedisToken == "" {
		missing = append(missing, KeyRedisToken)
	}
	return missing
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
