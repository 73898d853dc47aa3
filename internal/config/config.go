package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const DefaultDSN = "host=postgres user=postgres password=postgres dbname=storefront port=5432 sslmode=disable"

type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:":8080"`

	DBDriver    string `envconfig:"DB_DRIVER"    default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SessionTTL    time.Duration `envconfig:"SESSION_TTL"    default:"336h"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"cart_session"`
	CookieSecure  bool          `envconfig:"COOKIE_SECURE"  default:"false"`

	OIDCIssuer   string `envconfig:"OIDC_ISSUER" default:"https://accounts.google.com"`
	OIDCClientID string `envconfig:"OIDC_CLIENT_ID"`

	LogLevel  string `envconfig:"LOG_LEVEL"  default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	PageSize      int `envconfig:"PAGE_SIZE"      default:"12"`
	FeaturedLimit int `envconfig:"FEATURED_LIMIT" default:"6"`
	RelatedLimit  int `envconfig:"RELATED_LIMIT"  default:"4"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = DefaultDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}
