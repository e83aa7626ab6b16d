package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        string
	AppEnv      string
	StoreDriver string // "postgres" or "memory"

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Secret for the short-lived handshake token minted by the OAuth
	// callback and presented on websocket connect.
	JWTSecret string

	AdminEmail    string
	AdminPassword string
	AdminFullName string

	// External LMS collaborator (code exchange) and UI redirect target.
	LMSTokenURL   string
	UIRedirectURL string

	SurveyLink string

	// Per-student re-swap quota applied to new sessions.
	DefaultMaxSwapRequests int
}

func Load() *Config {
	return &Config{
		Port:        getenv("PORT", "8080"),
		AppEnv:      getenv("APP_ENV", "production"),
		StoreDriver: getenv("STORE_DRIVER", "postgres"),

		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", "postgres"),
		DBName:     getenv("DB_NAME", "thoughtswap"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),

		JWTSecret: getenv("JWT_SECRET", "supersecret_change_me"),

		AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),
		AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
		AdminFullName: getenv("ADMIN_FULL_NAME", "Administrator"),

		LMSTokenURL:   getenv("LMS_TOKEN_URL", ""),
		UIRedirectURL: getenv("UI_REDIRECT_URL", "http://localhost:5173/auth"),

		SurveyLink: getenv("SURVEY_LINK", ""),

		DefaultMaxSwapRequests: getenvInt("DEFAULT_MAX_SWAP_REQUESTS", 1),
	}
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
