package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/isdelr/ender-calendar-be/internal/policy"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds the application configuration.
type Config struct {
	ServerPort        int      `yaml:"port"`
	AppEnv            string   `yaml:"app_env"`
	LogLevel          string   `yaml:"log_level"`
	StoreBackend      string   `yaml:"store_backend"`
	DatabasePath      string   `yaml:"database_path"`
	JWTSecret         string   `yaml:"jwt_secret"`
	TokenTTL          Duration `yaml:"token_ttl"`
	LegacyOpenListing bool     `yaml:"legacy_open_listing"`
	AllowedOrigins    []string `yaml:"allowed_origins"`

	Redis    RedisConfig    `yaml:"redis"`
	Admin    AdminConfig    `yaml:"admin"`
	Identity IdentityConfig `yaml:"identity"`

	// EphemeralSecret is set when no JWT secret was configured in development
	// and a random one was generated; tokens will not survive a restart.
	EphemeralSecret bool `yaml:"-"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AdminConfig names the distinguished administrator account.
type AdminConfig struct {
	Email       string                  `yaml:"email"`
	Username    string                  `yaml:"username"`
	Password    string                  `yaml:"password"`
	EventPolicy policy.AdminEventPolicy `yaml:"event_policy"`
}

// IdentityConfig points at an external identity provider. Leaving JWKSURL
// empty disables it.
type IdentityConfig struct {
	JWKSURL  string `yaml:"jwks_url"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// Duration is a time.Duration that reads "24h" style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func defaults() *Config {
	return &Config{
		ServerPort:     5001,
		AppEnv:         "development",
		LogLevel:       "info",
		StoreBackend:   BackendSQLite,
		DatabasePath:   "./calendar.db",
		TokenTTL:       Duration(24 * time.Hour),
		AllowedOrigins: []string{"http://localhost:3000"},
		Redis:          RedisConfig{Addr: "localhost:6379"},
		Admin:          AdminConfig{EventPolicy: policy.AdminEventsAlwaysGlobal},
	}
}

// Load loads configuration from a .env file, an optional YAML file named by
// CONFIG_FILE, and environment variables, each overriding the one before,
// on top of the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error
	if cfg.ServerPort, err = getEnvInt("PORT", cfg.ServerPort); err != nil {
		return err
	}
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	if value, ok := os.LookupEnv("TOKEN_TTL"); ok {
		ttl, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = Duration(ttl)
	}
	if value, ok := os.LookupEnv("LEGACY_OPEN_LISTING"); ok {
		if cfg.LegacyOpenListing, err = strconv.ParseBool(value); err != nil {
			return fmt.Errorf("invalid LEGACY_OPEN_LISTING: %w", err)
		}
	}
	if value, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(value)
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}

	cfg.Admin.Email = getEnv("ADMIN_EMAIL", cfg.Admin.Email)
	cfg.Admin.Username = getEnv("ADMIN_USERNAME", cfg.Admin.Username)
	cfg.Admin.Password = getEnv("ADMIN_PASSWORD", cfg.Admin.Password)
	cfg.Admin.EventPolicy = policy.AdminEventPolicy(getEnv("ADMIN_EVENT_POLICY", string(cfg.Admin.EventPolicy)))

	cfg.Identity.JWKSURL = getEnv("JWKS_URL", cfg.Identity.JWKSURL)
	cfg.Identity.Issuer = getEnv("JWKS_ISSUER", cfg.Identity.Issuer)
	cfg.Identity.Audience = getEnv("JWKS_AUDIENCE", cfg.Identity.Audience)
	return nil
}

func (c *Config) validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid port %d", c.ServerPort)
	}
	switch c.StoreBackend {
	case BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	p, err := policy.ParseAdminEventPolicy(string(c.Admin.EventPolicy))
	if err != nil {
		return err
	}
	c.Admin.EventPolicy = p
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}

	if c.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET is required in production")
		}
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate development secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(secret)
		c.EphemeralSecret = true
	}
	return nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
