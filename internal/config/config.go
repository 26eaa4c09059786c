package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// セッションバックエンドの種別。
const (
	SessionBackendCookie   = "cookie"
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
	SessionBackendMemory   = "memory"
)

// Cookieコーデックの種別（SessionBackendCookie のときのみ使用）。
const (
	SessionCodecSigned    = "signed"
	SessionCodecEncrypted = "encrypted"
	SessionCodecPlain     = "plain"
)

// defaultSessionMaxAge はセッションCookieの既定有効期間（7日、秒）。
const defaultSessionMaxAge = 60 * 60 * 24 * 7

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv string

	// Directory API
	DirectoryAPIURL     string
	DirectoryAPITimeout time.Duration

	// Session
	SessionSecret  string
	SessionMaxAge  int
	SessionBackend string
	SessionCodec   string

	// Storage（セッションバックエンド用）
	DatabaseURL string
	RedisURL    string

	// Registration
	RegisterImageStrict bool
	MaxUploadSize       int64

	// Contacts
	ContactsCacheTTL time.Duration
	AvailabilityTZ   *time.Location

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Worker
	SessionCleanupInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS の許可オリジン。カンマ区切りで複数指定できる。
	CORSAllowedOrigin string
}

// IsProduction は本番相当の環境で起動しているかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.SessionBackend = getEnvString("SESSION_BACKEND", SessionBackendCookie)
	cfg.SessionCodec = getEnvString("SESSION_CODEC", SessionCodecSigned)

	// 署名・暗号化コーデックにはシークレットが必須
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" && cfg.SessionBackend == SessionBackendCookie && cfg.SessionCodec != SessionCodecPlain {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.SessionBackend == SessionBackendPostgres {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" && cfg.SessionBackend == SessionBackendRedis {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.SessionBackend {
	case SessionBackendCookie, SessionBackendPostgres, SessionBackendRedis, SessionBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported SESSION_BACKEND: %q", cfg.SessionBackend)
	}

	switch cfg.SessionCodec {
	case SessionCodecSigned, SessionCodecEncrypted, SessionCodecPlain:
	default:
		return nil, fmt.Errorf("unsupported SESSION_CODEC: %q", cfg.SessionCodec)
	}

	tzName := getEnvString("AVAILABILITY_TZ", "Local")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid AVAILABILITY_TZ %q: %w", tzName, err)
	}
	cfg.AvailabilityTZ = loc

	// Optional fields with defaults
	cfg.AppEnv = getEnvString("APP_ENV", "development")
	cfg.DirectoryAPIURL = strings.TrimRight(getEnvString("DIRECTORY_API_URL", "http://localhost:5000/api"), "/")
	cfg.DirectoryAPITimeout = getEnvDuration("DIRECTORY_API_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", defaultSessionMaxAge)
	cfg.RegisterImageStrict = getEnvBool("REGISTER_IMAGE_STRICT", false)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 5242880)
	cfg.ContactsCacheTTL = getEnvDuration("CONTACTS_CACHE_TTL", 60*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = cfg.IsProduction() || strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
