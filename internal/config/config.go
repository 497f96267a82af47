package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultSessionSecret is only acceptable in development.
const DefaultSessionSecret = "dev_only_session_secret_change_me"

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Session  SessionConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Notify   NotifyConfig
	Checkout CheckoutConfig
	Bridge   BridgeConfig
	CORS     CORSConfig
	Tenants  TenantsConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Env               string
	Port              string
	BaseURL           string
	AllowRegistration bool
	Timezone          string // default tenant timezone for report day boundaries
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver         string // mysql or sqlite
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectRetries int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level     string // debug, info, warn, error
	Format    string // json, console
	Output    string // stdout, stderr, or file path
	GormLevel string // silent, error, warn, info
	SlowQuery time.Duration
}

// SessionConfig holds the session cookie / JWT settings
type SessionConfig struct {
	Secret     string
	TTL        time.Duration
	CookieName string
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds broker settings for receipt dispatch. No brokers means log-only receipts.
type KafkaConfig struct {
	Brokers      []string
	ReceiptTopic string
}

// NotifyConfig bounds the outbound receipt call
type NotifyConfig struct {
	Timeout time.Duration
	Retries int
}

// CheckoutConfig holds sale finalization settings
type CheckoutConfig struct {
	PendingTTL     time.Duration // lifetime of a deferred sale's public token
	IdempotencyTTL time.Duration
}

// BridgeConfig points at the external tap-device bridge
type BridgeConfig struct {
	BaseURL string
}

// TenantsConfig holds operator-maintained tenant data
type TenantsConfig struct {
	// OwnerBackfill binds ownerless tenants to their owner: merchant id -> email
	OwnerBackfill map[string]string
}

// CORSConfig holds the allowed front-end origins
type CORSConfig struct {
	AllowOrigins []string
}

// Load reads .env (optional), config.toml (optional) and the environment.
// Priority (highest to lowest):
// 1. Environment variables (db.dsn -> DB_DSN)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:               v.GetString("app.env"),
			Port:              v.GetString("app.port"),
			BaseURL:           v.GetString("app.base_url"),
			AllowRegistration: v.GetBool("app.allow_registration"),
			Timezone:          v.GetString("app.timezone"),
		},
		Database: DatabaseConfig{
			Driver:         strings.ToLower(v.GetString("db.driver")),
			DSN:            v.GetString("db.dsn"),
			MaxOpenConns:   v.GetInt("db.max_open_conns"),
			MaxIdleConns:   v.GetInt("db.max_idle_conns"),
			ConnectRetries: v.GetInt("db.connect_retries"),
		},
		Log: LogConfig{
			Level:     v.GetString("log.level"),
			Format:    v.GetString("log.format"),
			Output:    v.GetString("log.output"),
			GormLevel: v.GetString("log.gorm_level"),
			SlowQuery: v.GetDuration("log.slow_query"),
		},
		Session: SessionConfig{
			Secret:     v.GetString("session.secret"),
			TTL:        v.GetDuration("session.ttl"),
			CookieName: v.GetString("session.cookie_name"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(v.GetString("kafka.brokers")),
			ReceiptTopic: v.GetString("kafka.receipt_topic"),
		},
		Notify: NotifyConfig{
			Timeout: v.GetDuration("notify.timeout"),
			Retries: v.GetInt("notify.retries"),
		},
		Checkout: CheckoutConfig{
			PendingTTL:     v.GetDuration("checkout.pending_ttl"),
			IdempotencyTTL: v.GetDuration("checkout.idempotency_ttl"),
		},
		Bridge: BridgeConfig{
			BaseURL: v.GetString("bridge.base_url"),
		},
		CORS: CORSConfig{
			AllowOrigins: splitList(v.GetString("cors.allow_origins")),
		},
	}

	backfill, err := parseOwnerBackfill(v.GetString("tenants.owner_backfill"))
	if err != nil {
		return nil, err
	}
	cfg.Tenants.OwnerBackfill = backfill

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.base_url", "http://localhost:8080")
	v.SetDefault("app.allow_registration", false)
	v.SetDefault("app.timezone", "UTC")

	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.connect_retries", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.gorm_level", "warn")
	v.SetDefault("log.slow_query", 200*time.Millisecond)

	v.SetDefault("session.secret", DefaultSessionSecret)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cookie_name", "pos_session")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.receipt_topic", "pos.receipts")

	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.retries", 2)

	v.SetDefault("checkout.pending_ttl", 24*time.Hour)
	v.SetDefault("checkout.idempotency_ttl", 24*time.Hour)

	v.SetDefault("bridge.base_url", "http://localhost:8080")
	v.SetDefault("cors.allow_origins", "http://localhost:5173")
	v.SetDefault("tenants.owner_backfill", "")
}

// Validate rejects configurations that cannot run safely
func (c *Config) Validate() error {
	if c.Database.Driver != "mysql" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported db.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("db.dsn is required (set DB_DSN)")
	}
	if !c.IsDevelopment() && c.Session.Secret == DefaultSessionSecret {
		return errors.New("session.secret must be set outside development")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if c.Checkout.PendingTTL <= 0 {
		return errors.New("checkout.pending_ttl must be positive")
	}
	return nil
}

// IsDevelopment reports whether the app runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "" || c.App.Env == "development"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseOwnerBackfill reads "MID-1=a@b.io,MID-2=c@d.io"
func parseOwnerBackfill(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		mid, email, ok := strings.Cut(pair, "=")
		mid, email = strings.TrimSpace(mid), strings.TrimSpace(email)
		if !ok || mid == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("tenants.owner_backfill: malformed entry %q", pair)
		}
		out[mid] = email
	}
	return out, nil
}
