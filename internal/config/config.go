package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cast"
)

type Config struct {
	Port        int
	DatabaseURL string
	RedisAddr   string
	JWTSecret   string
	TokenTTL    time.Duration
	LogFile     string

	DriveEndpoint string
	DriveUsername string
	DrivePassword string
	DriveRootPath string
	DriveEnabled  bool

	TMDBAPIKey   string
	TMDBProxyURL string

	RefreshSchedule string
}

func Load() *Config {
	return &Config{
		Port:        envInt("PORT", 8080),
		DatabaseURL: env("DATABASE_URL", "postgres://cloudshelf:cloudshelf@db:5432/cloudshelf?sslmode=disable"),
		RedisAddr:   env("REDIS_ADDR", "redis:6379"),
		JWTSecret:   env("JWT_SECRET", "change-me-in-production"),
		TokenTTL:    time.Duration(envInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		LogFile:     env("LOG_FILE", ""),

		DriveEndpoint: env("DRIVE_ENDPOINT", ""),
		DriveUsername: env("DRIVE_USERNAME", ""),
		DrivePassword: env("DRIVE_PASSWORD", ""),
		DriveRootPath: env("DRIVE_ROOT_PATH", "/"),
		DriveEnabled:  envBool("DRIVE_ENABLED", false),

		TMDBAPIKey:   env("TMDB_API_KEY", ""),
		TMDBProxyURL: env("TMDB_PROXY_URL", ""),

		RefreshSchedule: env("REFRESH_SCHEDULE", ""),
	}
}

// MergeFromDB overlays values stored in the system_settings table on top of
// the environment-derived config. Settings values are stored as strings.
func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM system_settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		c.apply(key, value)
	}
}

// Apply sets a single configuration value from a settings key. Used both by
// MergeFromDB at startup and by the settings handler when values change.
func (c *Config) Apply(key, value string) {
	c.apply(key, value)
}

func (c *Config) apply(key, value string) {
	switch key {
	case "drive_endpoint":
		c.DriveEndpoint = value
	case "drive_username":
		c.DriveUsername = value
	case "drive_password":
		c.DrivePassword = value
	case "drive_root_path":
		c.DriveRootPath = value
	case "drive_enabled":
		c.DriveEnabled = cast.ToBool(value)
	case "tmdb_api_key":
		c.TMDBAPIKey = value
	case "tmdb_proxy_url":
		c.TMDBProxyURL = value
	case "refresh_schedule":
		c.RefreshSchedule = value
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return cast.ToBool(v)
	}
	return fallback
}
