package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Revocation RevocationConfig
	Notify     NotifyConfig
	Log        LogConfig
}

type ServerConfig struct {
	Addr           string
	GinMode        string
	AllowedOrigins []string
}

// AuthConfig keeps raw string values; services parse and validate them so a
// bad value surfaces as ErrMisconfigured at startup.
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       string
	BcryptCost     string
	TokenTransport string
	StorageTimeout string
	ResetTokenTTL  string
	VerifyTokenTTL string
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   string
	CookieSameSite string
	// ExposeTokens returns reset and verification tokens in API responses
	// instead of expecting an out-of-band mailer. Development only.
	ExposeTokens string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       string
}

type RevocationConfig struct {
	// Backend is one of redis, postgres or memory.
	Backend       string
	SweepInterval string
}

// NotifyConfig points at an HTTP relay that delivers password reset and
// email verification tokens. Empty WebhookURL disables delivery.
type NotifyConfig struct {
	WebhookURL    string
	Method        string
	Body          string
	Timeout       string
	Authorization string
}

type LogConfig struct {
	Level string
	Dev   bool
}

func Load() Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	return Config{
		Server: ServerConfig{
			Addr:           getenv("HTTP_ADDR", ":8080"),
			GinMode:        getenv("GIN_MODE", "release"),
			AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Auth: AuthConfig{
			JWTSecret:      os.Getenv("JWT_SECRET"),
			TokenTTL:       getenv("JWT_EXPIRES_IN", "168h"),
			BcryptCost:     getenv("BCRYPT_COST", "12"),
			TokenTransport: getenv("AUTH_TOKEN_TRANSPORT", "both"),
			StorageTimeout: getenv("STORAGE_TIMEOUT", "3s"),
			ResetTokenTTL:  getenv("PASSWORD_RESET_TTL", "10m"),
			VerifyTokenTTL: getenv("EMAIL_VERIFY_TTL", "24h"),
			CookieName:     getenv("AUTH_COOKIE_NAME", "token"),
			CookiePath:     getenv("AUTH_COOKIE_PATH", "/"),
			CookieDomain:   os.Getenv("AUTH_COOKIE_DOMAIN"),
			CookieSecure:   os.Getenv("AUTH_COOKIE_SECURE"),
			CookieSameSite: getenv("AUTH_COOKIE_SAMESITE", "strict"),
			ExposeTokens:   os.Getenv("AUTH_EXPOSE_TOKENS"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenv("REDIS_DB", "0"),
		},
		Revocation: RevocationConfig{
			Backend:       getenv("REVOCATION_BACKEND", "redis"),
			SweepInterval: getenv("REVOCATION_SWEEP_INTERVAL", "1m"),
		},
		Notify: NotifyConfig{
			WebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
			Method:        getenv("NOTIFY_WEBHOOK_METHOD", "POST"),
			Body:          os.Getenv("NOTIFY_WEBHOOK_BODY"),
			Timeout:       getenv("NOTIFY_WEBHOOK_TIMEOUT", "10s"),
			Authorization: os.Getenv("NOTIFY_WEBHOOK_AUTHORIZATION"),
		},
		Log: LogConfig{
			Level: os.Getenv("LOG_LEVEL"),
			Dev:   os.Getenv("LOG_DEV") == "1",
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
