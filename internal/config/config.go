package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Ticket       TicketConfig
	OCR          OCRConfig
	Telegram     TelegramConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values for the catalog store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values for the cooldown tracker.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines reviewer authentication parameters for the HTTP
// command surface. ReviewerPasswordHash is a bcrypt hash; when empty the
// protected routes reject every login.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	ReviewerName          string
	ReviewerPasswordHash  string
	BcryptCost            int
}

// TicketConfig holds the lifecycle policy knobs.
type TicketConfig struct {
	CooldownWindow      time.Duration
	InactivityThreshold time.Duration
	ReapInterval        time.Duration
	CloseGrace          time.Duration
	HistoryLimit        int
	TranscriptBudget    int
	RequiredMarkers     []string
	ArchiveChannelID    string
}

// OCRConfig locates the text recognition engine. When TesseractPath is
// empty evidence waits for manual review instead of automatic
// classification.
type OCRConfig struct {
	TesseractPath string
}

// TelegramConfig configures the optional chat platform binding. The bot is
// disabled when Token is empty.
type TelegramConfig struct {
	Token string
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults
// where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			ReviewerName:          getEnv("AUTH_REVIEWER_NAME", "reviewer"),
			ReviewerPasswordHash:  os.Getenv("AUTH_REVIEWER_PASSWORD_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Ticket: TicketConfig{
			CooldownWindow:      getEnvAsDuration("TICKET_COOLDOWN_HOURS", time.Hour, 24),
			InactivityThreshold: getEnvAsDuration("TICKET_IDLE_SECONDS", time.Second, 600),
			ReapInterval:        getEnvAsDuration("TICKET_REAP_INTERVAL_SECONDS", time.Second, 60),
			CloseGrace:          getEnvAsDuration("TICKET_CLOSE_GRACE_SECONDS", time.Second, 5),
			HistoryLimit:        getEnvAsInt("TICKET_HISTORY_LIMIT", 100),
			TranscriptBudget:    getEnvAsInt("TICKET_TRANSCRIPT_BUDGET", 4000),
			RequiredMarkers:     getEnvAsList("TICKET_REQUIRED_MARKERS", []string{"rash tech", "subscribed"}),
			ArchiveChannelID:    os.Getenv("TICKET_ARCHIVE_CHANNEL_ID"),
		},
		OCR: OCRConfig{
			TesseractPath: os.Getenv("OCR_TESSERACT_PATH"),
		},
		Telegram: TelegramConfig{
			Token: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, unit time.Duration, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * unit
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
