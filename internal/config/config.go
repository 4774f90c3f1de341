// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	AdminIDs         []int64

	StorageDriver string
	DatabasePath  string
	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LogLevel    string
	LogFormat   string
	MetricsAddr string

	MembershipTimeout time.Duration
	DailyChannelLimit int
	IngestTick        time.Duration

	PremiumDays         int
	DefaultPremiumPrice int64
	DefaultCardNumber   string
	DefaultCardOwner    string

	LegacyDBPath         string
	MigrateLegacyOnStart bool
	MigrateLegacyForce   bool
}

// Load reads configuration from environment variables. Variables already set in the
// environment take precedence over a .env file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	admins, err := parseIDs("ADMIN_IDS")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TelegramBotToken:  token,
		AdminIDs:          admins,
		StorageDriver:     strings.ToLower(envOr("STORAGE_DRIVER", DriverSQLite)),
		DatabasePath:      envOr("DATABASE_PATH", "./data/kinobot.db"),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDatabase:     envOr("MONGODB_DATABASE", "kinobot"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "text"),
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		DefaultCardNumber: envOr("DEFAULT_CARD_NUMBER", "8600 0000 0000 0000"),
		DefaultCardOwner:  os.Getenv("DEFAULT_CARD_OWNER"),
		LegacyDBPath:      os.Getenv("LEGACY_DB_PATH"),
	}

	switch cfg.StorageDriver {
	case DriverSQLite:
	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI is required when STORAGE_DRIVER=mongo")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.DailyChannelLimit, err = intEnv("DAILY_CHANNEL_LIMIT", 6); err != nil {
		return nil, err
	}
	if cfg.PremiumDays, err = intEnv("PREMIUM_DAYS", 30); err != nil {
		return nil, err
	}
	price, err := intEnv("DEFAULT_PREMIUM_PRICE", 5000)
	if err != nil {
		return nil, err
	}
	cfg.DefaultPremiumPrice = int64(price)
	if cfg.DailyChannelLimit < 1 || cfg.PremiumDays < 1 || cfg.DefaultPremiumPrice < 1 {
		return nil, fmt.Errorf("DAILY_CHANNEL_LIMIT, PREMIUM_DAYS and DEFAULT_PREMIUM_PRICE must be positive")
	}

	if cfg.MembershipTimeout, err = durationEnv("MEMBERSHIP_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.IngestTick, err = durationEnv("INGEST_TICK", time.Minute); err != nil {
		return nil, err
	}
	if cfg.MigrateLegacyOnStart, err = boolEnv("MIGRATE_LEGACY_ON_START"); err != nil {
		return nil, err
	}
	if cfg.MigrateLegacyForce, err = boolEnv("MIGRATE_LEGACY_FORCE"); err != nil {
		return nil, err
	}
	if cfg.MigrateLegacyOnStart && cfg.LegacyDBPath == "" {
		return nil, fmt.Errorf("LEGACY_DB_PATH is required when MIGRATE_LEGACY_ON_START is set")
	}

	return cfg, nil
}

// IsAdmin checks whether a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseIDs(key string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(os.Getenv(key), ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func boolEnv(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
