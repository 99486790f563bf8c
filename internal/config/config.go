package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Audit backend failure modes.
const (
	AuditModeStrict  = "strict"
	AuditModeRelaxed = "relaxed"
)

var (
	// ErrMissingSigningKey means the token signing key was not configured.
	// This is a startup failure, never a per-request one.
	ErrMissingSigningKey = errors.New("config: signing key is not set")

	ErrInvalidConfig = errors.New("config: invalid value")
)

// Config carries everything the access-control core needs. It is built once
// at startup and passed into constructors explicitly; nothing reads the
// environment after Load returns.
type Config struct {
	Env string

	// Token signing and lifetime.
	SigningKey   string
	TokenTTL     time.Duration
	RefreshGrace time.Duration
	Issuer       string

	// Password hashing cost. Applies to newly written digests only; stored
	// digests self-describe their own parameters.
	HashIterations int

	// AuditMode selects what happens when an audit append fails:
	// strict aborts the operation, relaxed logs and continues.
	AuditMode string

	// PostgresDSN is optional; an empty value leaves the pg-backed stores
	// unconfigured (library consumers may supply their own).
	PostgresDSN string

	LogLevel string

	MetricsAddr string
}

// Load reads configuration from the environment, with an optional
// fieldline.env file for local development. Env vars win.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("fieldline")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // the file is optional

	v.SetEnvPrefix("FIELDLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("token_ttl", "30m")
	v.SetDefault("refresh_grace", "10m")
	v.SetDefault("issuer", "fieldline")
	v.SetDefault("hash_iterations", 600000)
	v.SetDefault("audit_mode", AuditModeStrict)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", ":9102")

	cfg := &Config{
		Env:            v.GetString("env"),
		SigningKey:     v.GetString("signing_key"),
		TokenTTL:       v.GetDuration("token_ttl"),
		RefreshGrace:   v.GetDuration("refresh_grace"),
		Issuer:         v.GetString("issuer"),
		HashIterations: v.GetInt("hash_iterations"),
		AuditMode:      strings.ToLower(strings.TrimSpace(v.GetString("audit_mode"))),
		PostgresDSN:    v.GetString("pg_dsn"),
		LogLevel:       v.GetString("log_level"),
		MetricsAddr:    v.GetString("metrics_addr"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on values the core cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return ErrMissingSigningKey
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token_ttl must be positive, got %s", ErrInvalidConfig, c.TokenTTL)
	}
	if c.RefreshGrace < 0 {
		return fmt.Errorf("%w: refresh_grace must not be negative, got %s", ErrInvalidConfig, c.RefreshGrace)
	}
	if c.HashIterations < 1 {
		return fmt.Errorf("%w: hash_iterations must be at least 1, got %d", ErrInvalidConfig, c.HashIterations)
	}
	switch c.AuditMode {
	case AuditModeStrict, AuditModeRelaxed:
	default:
		return fmt.Errorf("%w: unsupported audit_mode %q", ErrInvalidConfig, c.AuditMode)
	}
	return nil
}

// Strict reports whether audit failures must abort the triggering operation.
func (c *Config) Strict() bool {
	return c.AuditMode == AuditModeStrict
}
