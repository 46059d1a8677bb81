package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port int

	// Client side
	APIBaseURL   string
	SnapshotPath string
	CookiePath   string

	// Gateway side
	DBURL             string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SessionSecret     string
	SessionTTL        time.Duration
	CookieName        string
	CORSOrigins       []string
	OAuthAuthorizeURL string
	OTLPEndpoint      string
}

func Load() Config {
	env := getEnv("APP_ENV", "dev")
	port := getEnvInt("PORT", 8000)

	return Config{
		Env:  env,
		Port: port,

		APIBaseURL:   getEnv("API_BASE_URL", "http://localhost:8000"),
		SnapshotPath: getEnv("AUTH_SNAPSHOT_PATH", ""),
		CookiePath:   getEnv("AUTH_COOKIE_PATH", ""),

		DBURL:             buildDBURL(),
		RedisAddr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		SessionSecret:     getEnv("SESSION_SECRET", "dev-session-secret"),
		SessionTTL:        time.Duration(getEnvInt("SESSION_TTL_MIN", 60*24*7)) * time.Minute,
		CookieName:        getEnv("SESSION_COOKIE_NAME", "ag_session"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		OAuthAuthorizeURL: getEnv("OAUTH_AUTHORIZE_URL", "http://localhost:9999/auth/v1/authorize?provider=google"),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "authgate")
	pass := getEnv("DB_PASSWORD", "authgate")
	name := getEnv("DB_NAME", "authgate")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)

		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Println(err)
			return fallback
		}

		return num
	}
	return fallback
}
