package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration

	GuestyBase         string
	GuestyClientID     string
	GuestyClientSecret string
	GuestyRPS          int
	GuestyTimeout      time.Duration
	TokenGuard         time.Duration

	SyncSchedule    string
	SyncOnStart     bool
	SyncWorkers     int
	SyncRetireLimit int
	SyncDryRun      bool
	SyncAdminAddr   string
	SyncAdminToken  string

	Assets AssetsConfig
}

type AssetsConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	PublicURL string
	MaxBytes  int64
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; real environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-integer config value")
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/listings?parseTime=true&charset=utf8mb4&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,

		GuestyBase:         strings.TrimRight(env("GUESTY_BASE_URL", "https://api.guesty.com/api/v2"), "/"),
		GuestyClientID:     env("GUESTY_CLIENT_ID", ""),
		GuestyClientSecret: env("GUESTY_CLIENT_SECRET", ""),
		GuestyRPS:          atoi("GUESTY_RPS", 5),
		GuestyTimeout:      time.Duration(atoi("GUESTY_TIMEOUT_SECONDS", 30)) * time.Second,
		TokenGuard:         time.Duration(atoi("TOKEN_GUARD_SECONDS", 3600)) * time.Second,

		SyncSchedule:    env("SYNC_SCHEDULE", "@every 12h"),
		SyncOnStart:     boolEnv("SYNC_ON_START", true),
		SyncWorkers:     atoi("SYNC_WORKERS", 4),
		SyncRetireLimit: atoi("SYNC_RETIRE_LIMIT", 0),
		SyncDryRun:      boolEnv("SYNC_DRY_RUN", false),
		SyncAdminAddr:   env("SYNC_ADMIN_ADDR", ""),
		SyncAdminToken:  env("SYNC_ADMIN_TOKEN", ""),

		Assets: AssetsConfig{
			Enabled:   boolEnv("ASSETS_ENABLED", true),
			Endpoint:  env("ASSETS_ENDPOINT", "localhost:9000"),
			AccessKey: env("ASSETS_ACCESS_KEY", "minioadmin"),
			SecretKey: env("ASSETS_SECRET_KEY", "minioadmin"),
			Bucket:    env("ASSETS_BUCKET", "property-images"),
			UseSSL:    boolEnv("ASSETS_USE_SSL", false),
			Region:    env("ASSETS_REGION", ""),
			PublicURL: strings.TrimRight(env("ASSETS_PUBLIC_URL", ""), "/"),
			MaxBytes:  int64(atoi("ASSETS_MAX_BYTES", 10<<20)),
		},
	}
	if c.GuestyClientID == "" || c.GuestyClientSecret == "" {
		log.Warn().Msg("GUESTY_CLIENT_ID or GUESTY_CLIENT_SECRET is empty")
	}
	if c.SyncWorkers <= 0 {
		c.SyncWorkers = 1
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func boolEnv(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
