// README: Config loader; environment variables with defaults for HTTP, storage, auth, maps and quotes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	AuthFirebase = "firebase"
	AuthJWT      = "jwt"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTP     struct {
		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
	}
	Store struct {
		Mode string `env:"STORE" envDefault:"postgres"`
	}
	DB struct {
		DSN     string `env:"DB_DSN"`
		Migrate bool   `env:"DB_MIGRATE" envDefault:"true"`
	}
	Redis struct {
		Addr string `env:"REDIS_ADDR"`
	}
	Auth struct {
		Mode      string   `env:"AUTH_MODE" envDefault:"firebase"`
		JWTSecret string   `env:"JWT_SECRET"`
		AdminUIDs []string `env:"ADMIN_UIDS" envSeparator:","`
	}
	Firebase struct {
		ProjectID       string `env:"FIREBASE_PROJECT_ID"`
		CredentialsFile string `env:"FIREBASE_CREDENTIALS"`
		Bucket          string `env:"FIREBASE_BUCKET"`
	}
	Maps struct {
		APIKey string `env:"MAPS_API_KEY"`
	}
	Quote struct {
		TTL time.Duration `env:"QUOTE_TTL" envDefault:"10m"`
	}
}

// Load reads COURIER_* variables.
func Load() (Config, error) {
	return load(env.Options{Prefix: "COURIER_"})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store.Mode = strings.ToLower(strings.TrimSpace(cfg.Store.Mode))
	cfg.Auth.Mode = strings.ToLower(strings.TrimSpace(cfg.Auth.Mode))
	admins := cfg.Auth.AdminUIDs[:0]
	for _, uid := range cfg.Auth.AdminUIDs {
		if uid = strings.TrimSpace(uid); uid != "" {
			admins = append(admins, uid)
		}
	}
	cfg.Auth.AdminUIDs = admins
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Store.Mode {
	case StorePostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("COURIER_DB_DSN is required when COURIER_STORE=%s", StorePostgres)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store mode %q", c.Store.Mode)
	}
	switch c.Auth.Mode {
	case AuthFirebase:
		if c.Firebase.ProjectID == "" {
			return fmt.Errorf("COURIER_FIREBASE_PROJECT_ID is required when COURIER_AUTH_MODE=%s", AuthFirebase)
		}
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("COURIER_JWT_SECRET is required when COURIER_AUTH_MODE=%s", AuthJWT)
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}
	if c.Quote.TTL <= 0 {
		return fmt.Errorf("COURIER_QUOTE_TTL must be positive")
	}
	return nil
}

// String renders the config for startup logs with secrets masked.
func (c Config) String() string {
	return fmt.Sprintf(
		"http=%s store=%s db=%s redis=%s auth=%s jwt_secret=%s firebase_project=%s bucket=%s maps_key=%s admins=%d quote_ttl=%s",
		c.HTTP.Addr, c.Store.Mode, mask(c.DB.DSN), c.Redis.Addr, c.Auth.Mode, mask(c.Auth.JWTSecret),
		c.Firebase.ProjectID, c.Firebase.Bucket, mask(c.Maps.APIKey), len(c.Auth.AdminUIDs), c.Quote.TTL,
	)
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return "***"
}
