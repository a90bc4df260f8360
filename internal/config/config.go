package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Timezone string // IANA name, falls back to fixed +07:00 when unknown

	// Schedulers
	PollInterval           time.Duration // how often both loops look at the settings (default: 60s)
	DefaultIntervalMinutes int           // auto-check interval used when the stored one is unusable

	// SERP backend
	SerpAPIURL       string
	SerpAPIKeys      []string // seeded as "ENV Key N" credentials on first start
	SerpTimeout      time.Duration
	SerpCountry      string
	SerpLanguage     string
	SerpResults      int
	SerpRatePerSec   float64
	SerpMonthlyLimit int

	// Backup
	BackupRowsPerFile int
	TelegramAPIURL    string
	TelegramBotToken  string   // fallback when the settings document has none
	TelegramChatIDs   []string // seeded into the settings document on first start
	TelegramTimeout   time.Duration

	// Catalog
	CatalogFile           string        // optional YAML catalog (empty = disabled)
	CatalogReloadInterval time.Duration // default: 1h

	// Retention
	Retention         time.Duration // check runs older than this are pruned (0 = keep forever)
	RetentionInterval time.Duration

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisPoolSize         int           // Redis connection pool size

	// Postgres
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Startup retry policy shared by Redis and Postgres
	ConnectTimeout time.Duration // total time to retry connecting (ex: 30s)
	RetryInterval  time.Duration // initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	WarnThreshold  int           // warn after this many attempts

	// Admin surface
	AllowedCIDRS    []string // optional, restrict access to specific IPs/CIDRs
	TrustProxy      bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	AdminRateBurst  int
	AdminRatePerMin int
}

// LoadEnvFile loads SERPWATCH_ENV_FILE (default ".env") into the environment.
// Variables already set win, and a missing file is not an error.
func LoadEnvFile() error {
	path := getenv("SERPWATCH_ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func Load() *Config {
	if err := LoadEnvFile(); err != nil {
		panic("❌ FATAL: " + err.Error())
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SERPWATCH_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SERPWATCH_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("SERPWATCH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SERPWATCH_PRETTY_LOG", true),

		Timezone: getenv("SERPWATCH_TIMEZONE", "Asia/Jakarta"),

		// Schedulers
		PollInterval:           mustDuration("SERPWATCH_POLL_INTERVAL", 60*time.Second),
		DefaultIntervalMinutes: getenvInt("SERPWATCH_DEFAULT_INTERVAL_MINUTES", 60),

		// SERP backend
		SerpAPIURL:       getenv("SERPWATCH_SERP_API_URL", "https://serpapi.com/search.json"),
		SerpAPIKeys:      splitAndTrim(getenv("SERPWATCH_SERP_API_KEYS", "")),
		SerpTimeout:      mustDuration("SERPWATCH_SERP_TIMEOUT", 20*time.Second),
		SerpCountry:      getenv("SERPWATCH_SERP_COUNTRY", "id"),
		SerpLanguage:     getenv("SERPWATCH_SERP_LANGUAGE", "id"),
		SerpResults:      getenvInt("SERPWATCH_SERP_RESULTS", 10),
		SerpRatePerSec:   getenvFloat("SERPWATCH_SERP_RATE_PER_SEC", 1),
		SerpMonthlyLimit: getenvInt("SERPWATCH_SERP_MONTHLY_LIMIT", 2500),

		// Backup
		BackupRowsPerFile: getenvInt("SERPWATCH_BACKUP_ROWS_PER_FILE", 500),
		TelegramAPIURL:    getenv("SERPWATCH_TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramBotToken:  getenv("SERPWATCH_TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:   splitAndTrim(getenv("SERPWATCH_TELEGRAM_CHAT_IDS", "")),
		TelegramTimeout:   mustDuration("SERPWATCH_TELEGRAM_TIMEOUT", 30*time.Second),

		// Catalog
		CatalogFile:           getenv("SERPWATCH_CATALOG_FILE", ""),
		CatalogReloadInterval: mustDuration("SERPWATCH_CATALOG_RELOAD_INTERVAL", time.Hour),

		// Retention
		Retention:         mustDuration("SERPWATCH_RETENTION", 0),
		RetentionInterval: mustDuration("SERPWATCH_RETENTION_INTERVAL", 24*time.Hour),

		// Redis settings
		RedisAddr:             requireEnv("SERPWATCH_REDIS_ADDR"),
		RedisUser:             getenv("SERPWATCH_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("SERPWATCH_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("SERPWATCH_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("SERPWATCH_REDIS_DB", 0),
		RedisDT:               mustDuration("SERPWATCH_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("SERPWATCH_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("SERPWATCH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:         getenvInt("SERPWATCH_REDIS_POOL_SIZE", 10),

		// Postgres settings
		DatabaseURL:       requireEnv("SERPWATCH_DATABASE_URL"),
		DBMaxOpenConns:    getenvInt("SERPWATCH_DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    getenvInt("SERPWATCH_DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: mustDuration("SERPWATCH_DB_CONN_MAX_LIFETIME", 30*time.Minute),

		ConnectTimeout: mustDuration("SERPWATCH_CONNECT_TIMEOUT", 30*time.Second),
		RetryInterval:  mustDuration("SERPWATCH_RETRY_INTERVAL", 2*time.Second),
		MaxWait:        mustDuration("SERPWATCH_MAX_WAIT", 10*time.Second),
		PingTimeout:    mustDuration("SERPWATCH_PING_TIMEOUT", 5*time.Second),
		WarnThreshold:  getenvInt("SERPWATCH_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedCIDRS:    splitAndTrim(getenv("SERPWATCH_ALLOWED_CIDRS", "")),
		TrustProxy:      mustBool("SERPWATCH_TRUST_PROXY", true),
		AdminRateBurst:  getenvInt("SERPWATCH_ADMIN_RATE_BURST", 10),
		AdminRatePerMin: getenvInt("SERPWATCH_ADMIN_RATE_PER_MIN", 30),
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: SERPWATCH_REDIS_PASSWORD is required when SERPWATCH_REDIS_PASSWORD_REQUIRED=true")
	}

	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	const redacted = "***REDACTED***"
	if out.RedisPassword != "" {
		out.RedisPassword = redacted
	}
	if out.RedisUser != "" {
		out.RedisUser = redacted
	}
	if out.TelegramBotToken != "" {
		out.TelegramBotToken = redacted
	}
	if out.DatabaseURL != "" {
		out.DatabaseURL = redacted
	}
	if len(out.SerpAPIKeys) > 0 {
		out.SerpAPIKeys = []string{fmt.Sprintf("%d keys %s", len(c.SerpAPIKeys), redacted)}
	}
	return out
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
