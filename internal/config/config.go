package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	DiscordToken string

	// Premium SKU ids gating benefit enforcement. Enforcement is disabled
	// entirely when both are empty.
	PlusSKUID             string
	ProSKUID              string
	EntitlementWebhookURL string

	BotListTargets []BotListTarget
	PostInterval   time.Duration

	OTLPEndpoint string

	HTTPAddr string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// BotListTarget describes a bot list endpoint receiving guild counts.
type BotListTarget struct {
	URL   string
	Token string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "tacows"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		DiscordToken: strings.TrimSpace(getenv("DISCORD_BOT_TOKEN", "")),

		PlusSKUID:             strings.TrimSpace(getenv("PLUS_SKU_ID", "")),
		ProSKUID:              strings.TrimSpace(getenv("PRO_SKU_ID", "")),
		EntitlementWebhookURL: strings.TrimSpace(getenv("ENTITLEMENT_WEBHOOK_URL", "")),

		BotListTargets: parseBotLists(getenv("BOT_LIST_TARGETS", "")),
		PostInterval:   getenvDuration("BOT_LIST_INTERVAL", 30*time.Minute),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "taco"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),
	}

	return cfg
}

// EnforcementEnabled reports whether entitlement-driven quota enforcement
// is configured at all.
func (c Config) EnforcementEnabled() bool {
	return c.PlusSKUID != "" || c.ProSKUID != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

// parseBotLists parses "url|token,url|token" pairs.
func parseBotLists(raw string) []BotListTarget {
	parts := strings.Split(raw, ",")
	out := make([]BotListTarget, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		url, token, _ := strings.Cut(p, "|")
		out = append(out, BotListTarget{URL: url, Token: token})
	}
	return out
}
