package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	Port        int
	DatabaseURL string
	LogLevel    string
	LogPretty   bool
	CORSOrigins []string
	Qonto       QontoConfig
	Sync        SyncConfig
	Matching    MatchingConfig
}

// QontoConfig holds raw provider credentials. Which set is used is decided by
// the qonto client, so a missing secret never fails Load.
type QontoConfig struct {
	AuthMode       string // "oauth", "api_key" or empty for auto-detection
	OrganizationID string
	APIKey         string
	AccessToken    string
	BaseURL        string
	Timeout        time.Duration
}

// SyncConfig tunes the sync engine
type SyncConfig struct {
	DefaultFromDate     time.Time
	PageSize            int
	MaxPagesIncremental int
	MaxPagesAll         int
	TimeoutIncremental  time.Duration
	TimeoutAll          time.Duration
	AccountConcurrency  int
	MaxRetries          int
	RetryDelay          time.Duration
	RequestsPerSecond   float64
	Schedule            string // cron spec for the incremental job, empty disables it
	AutoCreateExpenses  bool
}

// MatchingConfig tunes the matching engine
type MatchingConfig struct {
	Epsilon decimal.Decimal
}

// DefaultEpoch is where backfills start when nothing else is configured.
var DefaultEpoch = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	fromDate := DefaultEpoch
	if raw := getEnv("SYNC_DEFAULT_FROM_DATE", ""); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNC_DEFAULT_FROM_DATE %q: %w", raw, err)
		}
		fromDate = parsed
	}

	epsilon, err := decimal.NewFromString(getEnv("MATCHING_EPSILON", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid MATCHING_EPSILON: %w", err)
	}

	cfg := &Config{
		Port:        getEnvAsInt("PORT", 8080),
		DatabaseURL: databaseURL(),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", false),
		CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		Qonto: QontoConfig{
			AuthMode:       strings.ToLower(getEnv("QONTO_AUTH_MODE", "")),
			OrganizationID: getEnv("QONTO_ORGANIZATION_ID", ""),
			APIKey:         getEnv("QONTO_API_KEY", ""),
			AccessToken:    getEnv("QONTO_ACCESS_TOKEN", ""),
			BaseURL:        getEnv("QONTO_API_BASE_URL", "https://thirdparty.qonto.com"),
			Timeout:        getEnvAsDuration("QONTO_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			DefaultFromDate:     fromDate,
			PageSize:            getEnvAsInt("SYNC_PAGE_SIZE", 100),
			MaxPagesIncremental: getEnvAsInt("SYNC_MAX_PAGES_INCREMENTAL", 50),
			MaxPagesAll:         getEnvAsInt("SYNC_MAX_PAGES_ALL", 1000),
			TimeoutIncremental:  getEnvAsDuration("SYNC_TIMEOUT_INCREMENTAL", 300*time.Second),
			TimeoutAll:          getEnvAsDuration("SYNC_TIMEOUT_ALL", 900*time.Second),
			AccountConcurrency:  getEnvAsInt("SYNC_ACCOUNT_CONCURRENCY", 2),
			MaxRetries:          getEnvAsInt("SYNC_MAX_RETRIES", 3),
			RetryDelay:          getEnvAsDuration("SYNC_RETRY_DELAY", time.Second),
			RequestsPerSecond:   getEnvAsFloat("SYNC_REQUESTS_PER_SECOND", 5),
			Schedule:            getEnv("SYNC_SCHEDULE", ""),
			AutoCreateExpenses:  getEnvAsBool("SYNC_AUTO_CREATE_EXPENSES", false),
		},
		Matching: MatchingConfig{Epsilon: epsilon},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would make the service misbehave.
// Qonto credentials are not checked here; the health check reports them.
func (c *Config) Validate() error {
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 100 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be between 1 and 100, got %d", c.Sync.PageSize)
	}
	if c.Sync.AccountConcurrency <= 0 {
		return fmt.Errorf("SYNC_ACCOUNT_CONCURRENCY must be positive, got %d", c.Sync.AccountConcurrency)
	}
	if c.Matching.Epsilon.IsNegative() {
		return fmt.Errorf("MATCHING_EPSILON must not be negative")
	}
	switch c.Qonto.AuthMode {
	case "", "oauth", "api_key":
	default:
		return fmt.Errorf("QONTO_AUTH_MODE must be oauth or api_key, got %q", c.Qonto.AuthMode)
	}
	return nil
}

func databaseURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "reconciliation"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
