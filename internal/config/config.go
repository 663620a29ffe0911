package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	defaultMaxBodySize = 1 << 20
	defaultJWTSecret   = "replace-this-with-a-strong-secret"
)

// ErrInsecureSecret is returned by Validate when production runs with the
// built-in JWT secret.
var ErrInsecureSecret = errors.New("JWT_SECRET must be set in production")

// Config holds application configuration
type Config struct {
	// ストア設定: memory | mysql | sqlite | pebble
	StoreDriver string
	SQLitePath  string
	PebblePath  string
	RedisAddr   string

	// MariaDB接続設定
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// サーバー設定
	ServerPort  string
	Env         string
	MaxBodySize int64

	// 認証・レート制限
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int

	ProfilesFile string

	// ログ設定
	LogLevel string
	LogSink  string

	// CORS設定
	AllowedOrigins []string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load loads configuration from environment variables
func Load() Config {
	cfg := Config{
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "memory")),
		SQLitePath:  getEnv("SQLITE_PATH", "fuwachat.db"),
		PebblePath:  getEnv("PEBBLE_PATH", "data/pebble"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		MaxBodySize: defaultMaxBodySize,

		JWTSecret:      getEnv("JWT_SECRET", defaultJWTSecret),
		RateLimitRPS:   5,
		RateLimitBurst: 10,

		ProfilesFile: os.Getenv("PROFILES_FILE"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogSink:  getEnv("LOG_SINK", "stdout"),
	}

	if v := os.Getenv("MAX_BODY_SIZE"); v != "" {
		if n, err := humanize.ParseBytes(v); err == nil && n > 0 {
			cfg.MaxBodySize = int64(n)
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimitBurst = n
		}
	}

	allowedOrigins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	cfg.AllowedOrigins = strings.Split(allowedOrigins, ",")
	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}

// IsProduction reports whether ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects settings that are only acceptable outside production.
func (c Config) Validate() error {
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return ErrInsecureSecret
	}
	return nil
}
