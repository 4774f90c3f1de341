package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"TELEGRAM_BOT_TOKEN", "ADMIN_IDS", "STORAGE_DRIVER", "DATABASE_PATH", "MONGODB_URI",
	"MONGODB_DATABASE", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "LOG_LEVEL", "LOG_FORMAT",
	"METRICS_ADDR", "MEMBERSHIP_TIMEOUT", "DAILY_CHANNEL_LIMIT", "PREMIUM_DAYS",
	"DEFAULT_PREMIUM_PRICE", "DEFAULT_CARD_NUMBER", "DEFAULT_CARD_OWNER", "LEGACY_DB_PATH",
	"MIGRATE_LEGACY_ON_START", "MIGRATE_LEGACY_FORCE", "INGEST_TICK",
}

func defaults() *Config {
	return &Config{
		TelegramBotToken:    "tok",
		StorageDriver:       DriverSQLite,
		DatabasePath:        "./data/kinobot.db",
		MongoDatabase:       "kinobot",
		LogLevel:            "info",
		LogFormat:           "text",
		MembershipTimeout:   5 * time.Second,
		DailyChannelLimit:   6,
		IngestTick:          time.Minute,
		PremiumDays:         30,
		DefaultPremiumPrice: 5000,
		DefaultCardNumber:   "8600 0000 0000 0000",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func() *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "token only, defaults applied",
			env:  map[string]string{"TELEGRAM_BOT_TOKEN": "tok"},
			want: defaults,
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":      "tok",
				"ADMIN_IDS":               "111,222",
				"STORAGE_DRIVER":          "Mongo",
				"MONGODB_URI":             "mongodb://localhost:27017",
				"MONGODB_DATABASE":        "kino",
				"REDIS_ADDR":              "localhost:6379",
				"REDIS_DB":                "2",
				"LOG_LEVEL":               "debug",
				"LOG_FORMAT":              "json",
				"METRICS_ADDR":            ":9090",
				"MEMBERSHIP_TIMEOUT":      "3s",
				"DAILY_CHANNEL_LIMIT":     "4",
				"PREMIUM_DAYS":            "60",
				"DEFAULT_PREMIUM_PRICE":   "15000",
				"DEFAULT_CARD_OWNER":      "Owner",
				"LEGACY_DB_PATH":          "/data/old.db",
				"MIGRATE_LEGACY_ON_START": "1",
				"MIGRATE_LEGACY_FORCE":    "true",
				"INGEST_TICK":             "30s",
			},
			want: func() *Config {
				c := defaults()
				c.AdminIDs = []int64{111, 222}
				c.StorageDriver = DriverMongo
				c.MongoURI = "mongodb://localhost:27017"
				c.MongoDatabase = "kino"
				c.RedisAddr = "localhost:6379"
				c.RedisDB = 2
				c.LogLevel = "debug"
				c.LogFormat = "json"
				c.MetricsAddr = ":9090"
				c.MembershipTimeout = 3 * time.Second
				c.DailyChannelLimit = 4
				c.PremiumDays = 60
				c.DefaultPremiumPrice = 15000
				c.DefaultCardOwner = "Owner"
				c.LegacyDBPath = "/data/old.db"
				c.MigrateLegacyOnStart = true
				c.MigrateLegacyForce = true
				c.IngestTick = 30 * time.Second
				return c
			},
		},
		{
			name: "admin ids with spaces",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"ADMIN_IDS":          " 10 , 20 , ",
			},
			want: func() *Config {
				c := defaults()
				c.AdminIDs = []int64{10, 20}
				return c
			},
		},
		{
			name:    "invalid admin id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "ADMIN_IDS": "123,abc"},
			wantErr: true,
		},
		{
			name:    "mongo without uri",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "STORAGE_DRIVER": "mongo"},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "STORAGE_DRIVER": "postgres"},
			wantErr: true,
		},
		{
			name:    "zero channel limit",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "DAILY_CHANNEL_LIMIT": "0"},
			wantErr: true,
		},
		{
			name:    "bad timeout",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "MEMBERSHIP_TIMEOUT": "5"},
			wantErr: true,
		},
		{
			name:    "legacy import without path",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok", "MIGRATE_LEGACY_ON_START": "1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear relevant env vars
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want(), got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name   string
		admins []int64
		userID int64
		want   bool
	}{
		{
			name:   "empty list allows nobody",
			admins: nil,
			userID: 42,
			want:   false,
		},
		{
			name:   "user in list",
			admins: []int64{10, 20, 30},
			userID: 20,
			want:   true,
		},
		{
			name:   "user not in list",
			admins: []int64{10, 20, 30},
			userID: 99,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AdminIDs: tt.admins}
			got := cfg.IsAdmin(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsAdmin() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
