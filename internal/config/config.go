// Package config loads application configuration from environment variables using the dotted key layout described
// in the external interface contract: application.*, database.*, broker.*. Every key can be overridden by an
// environment variable built from the prefix "APP", separator "__", and the key with dots replaced by "__" (e.g.
// application.jwt_secret -> APP__APPLICATION__JWT_SECRET).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envPrefix and envSeparator implement the "app__" prefix / "__" separator override scheme.
const (
	envPrefix    = "APP"
	envSeparator = "__"
)

// Application holds the gateway/API process-facing settings.
type Application struct {
	Host      string
	Port      int
	BaseURL   string
	JWTSecret string
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Username     string
	Password     string
	Host         string
	Port         int
	DatabaseName string
	RequireSSL   bool
}

// Broker holds the durable event-bus connection settings. The "broker" section originally described an AMQP broker;
// this rewrite repurposes the same keys for a Redis/Valkey connection (see DESIGN.md) while keeping the queue name
// configurable as the Redis Stream key.
type Broker struct {
	Username string
	Password string
	Host     string
	Port     int
	Queue    string
}

// Config is the fully parsed, validated application configuration.
type Config struct {
	Application Application
	Database    Database
	Broker      Broker

	// Environment selects "development" or "production" behaviour (console logging, relaxed TLS defaults).
	Environment string

	// Argon2 password hashing parameters.
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32

	JWTAccessTTL time.Duration

	// Gateway tuning.
	GatewayMailboxSize      int
	GatewayMaxConnections   int
	BrokerPublishRetryDelay time.Duration

	CORSAllowOrigins string
}

// Load reads configuration from environment variables, applying defaults and collecting every parse/validation error
// via errors.Join rather than failing on the first one encountered.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Application: Application{
			Host:      p.str("application.host", "0.0.0.0"),
			Port:      p.int("application.port", 8080),
			BaseURL:   p.str("application.base_url", "http://localhost:8080"),
			JWTSecret: p.str("application.jwt_secret", ""),
		},
		Database: Database{
			Username:     p.str("database.username", "postgres"),
			Password:     p.str("database.password", "password"),
			Host:         p.str("database.host", "localhost"),
			Port:         p.int("database.port", 5432),
			DatabaseName: p.str("database.database_name", "uncord"),
			RequireSSL:   p.bool("database.require_ssl", false),
		},
		Broker: Broker{
			Username: p.str("broker.username", "default"),
			Password: p.str("broker.password", ""),
			Host:     p.str("broker.host", "localhost"),
			Port:     p.int("broker.port", 6379),
			Queue:    p.str("broker.queue", "uncord.events"),
		},

		Environment: p.str("environment", "production"),

		Argon2Memory:      p.uint32("argon2.memory", 65536),
		Argon2Iterations:  p.uint32("argon2.iterations", 3),
		Argon2Parallelism: p.uint8("argon2.parallelism", 2),
		Argon2SaltLength:  p.uint32("argon2.salt_length", 16),
		Argon2KeyLength:   p.uint32("argon2.key_length", 32),

		JWTAccessTTL: p.duration("application.jwt_access_ttl", 15*time.Minute),

		GatewayMailboxSize:      p.int("gateway.mailbox_size", 128),
		GatewayMaxConnections:   p.int("gateway.max_connections", 10000),
		BrokerPublishRetryDelay: p.duration("broker.publish_retry_delay", 100*time.Millisecond),

		CORSAllowOrigins: p.str("application.cors_allow_origins", "*"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	if cfg.IsDevelopment() && cfg.Application.JWTSecret == "" {
		cfg.Application.JWTSecret = "development-only-secret-do-not-use-in-production"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment reports whether the configured environment is "development".
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// DatabaseDSN builds a libpq-compatible connection string from the Database settings.
func (c *Config) DatabaseDSN() string {
	sslmode := "disable"
	if c.Database.RequireSSL {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DatabaseName, sslmode)
}

// BrokerAddr builds a Redis/Valkey connection string from the Broker settings.
func (c *Config) BrokerAddr() string {
	auth := c.Broker.Username
	if c.Broker.Password != "" {
		auth = fmt.Sprintf("%s:%s", c.Broker.Username, c.Broker.Password)
	}
	return fmt.Sprintf("redis://%s@%s:%d/0", auth, c.Broker.Host, c.Broker.Port)
}

func (c *Config) validate() error {
	var errs []error

	if c.Application.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("application.jwt_secret is required"))
	} else if len(c.Application.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("application.jwt_secret must be at least 32 characters"))
	}

	if c.Application.Port < 1 || c.Application.Port > 65535 {
		errs = append(errs, fmt.Errorf("application.port must be between 1 and 65535"))
	}

	if _, err := stripScheme(c.Application.BaseURL); err != nil {
		errs = append(errs, err)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("database.port must be between 1 and 65535"))
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("broker.port must be between 1 and 65535"))
	}
	if c.Broker.Queue == "" {
		errs = append(errs, fmt.Errorf("broker.queue must not be empty"))
	}

	if c.Argon2Memory == 0 {
		errs = append(errs, fmt.Errorf("argon2.memory must be greater than 0"))
	}
	if c.Argon2Iterations == 0 {
		errs = append(errs, fmt.Errorf("argon2.iterations must be greater than 0"))
	}
	if c.Argon2Parallelism == 0 {
		errs = append(errs, fmt.Errorf("argon2.parallelism must be greater than 0"))
	}

	if c.JWTAccessTTL < time.Second {
		errs = append(errs, fmt.Errorf("application.jwt_access_ttl must be at least 1s"))
	}
	if c.GatewayMailboxSize < 1 {
		errs = append(errs, fmt.Errorf("gateway.mailbox_size must be at least 1"))
	}
	if c.GatewayMaxConnections < 1 {
		errs = append(errs, fmt.Errorf("gateway.max_connections must be at least 1"))
	}

	return errors.Join(errs...)
}

// stripScheme is a minimal sanity check that BaseURL looks like an absolute URL; it deliberately avoids pulling in
// net/url.Parse's full generality since only the http(s) scheme prefix matters here.
func stripScheme(raw string) (string, error) {
	if strings.HasPrefix(raw, "http://") {
		return strings.TrimPrefix(raw, "http://"), nil
	}
	if strings.HasPrefix(raw, "https://") {
		return strings.TrimPrefix(raw, "https://"), nil
	}
	return "", fmt.Errorf("application.base_url must start with http:// or https://: %q", raw)
}

// parser collects parse errors so Load can report all invalid values at once. Every lookup first checks the
// environment-variable override (the dotted key upper-cased, dots replaced by the separator, prefixed), falling
// back to the provided default when unset.
type parser struct {
	errs []error
}

func envVarName(key string) string {
	upper := strings.ToUpper(strings.ReplaceAll(key, ".", envSeparator))
	return envPrefix + envSeparator + upper
}

func (p *parser) lookup(key string) (string, bool) {
	name := envVarName(key)
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		// The all-lower-case spelling (app__application__port) is accepted as well.
		v, ok = os.LookupEnv(strings.ToLower(name))
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (p *parser) str(key, fallback string) string {
	if v, ok := p.lookup(key); ok {
		return v
	}
	return fallback
}

func (p *parser) int(key string, fallback int) int {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", envVarName(key), v))
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected boolean)", envVarName(key), v))
		return fallback
	}
	return b
}

func (p *parser) uint32(key string, fallback uint32) uint32 {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 32-bit integer)", envVarName(key), v))
		return fallback
	}
	return uint32(n)
}

func (p *parser) uint8(key string, fallback uint8) uint8 {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 8-bit integer)", envVarName(key), v))
		return fallback
	}
	return uint8(n)
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected duration like \"24h\" or \"30m\")", envVarName(key), v))
		return fallback
	}
	return d
}
