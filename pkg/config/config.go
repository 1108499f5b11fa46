package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Application settings
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	External ExternalConfig
	Sync     SyncConfig
	Tenants  TenantsConfig
}

// Server settings
type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	URL string
}

type ExternalConfig struct {
	AdsAPIBaseURL      string
	AdsAPITimeout      time.Duration
	CRMAPIBaseURL      string
	CRMAPITimeout      time.Duration
	MaxRetries         int
	RetryBaseDelay     time.Duration
	RateLimitPerSecond int
}

type SyncConfig struct {
	BatchSize          int
	StaleAfter         time.Duration
	CreativeTTL        time.Duration
	ReportSyncMode     string
	BackgroundTimeout  time.Duration
	WeeklySyncInterval time.Duration
	LeadSyncInterval   time.Duration
	LookbackWeeks      int
}

// Tenant directory source for in-memory mode
type TenantsConfig struct {
	File string
}

// Logging settings
type LoggingConfig struct {
	Level       string
	SentryDSN   string
	Environment string
}

// Load reads the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		External: ExternalConfig{
			AdsAPIBaseURL:      getEnv("ADS_API_BASE_URL", "https://graph.facebook.com/v19.0"),
			AdsAPITimeout:      getDurationEnv("ADS_API_TIMEOUT", "20s"),
			CRMAPIBaseURL:      getEnv("CRM_API_BASE_URL", ""),
			CRMAPITimeout:      getDurationEnv("CRM_API_TIMEOUT", "15s"),
			MaxRetries:         getIntEnv("MAX_RETRIES", 3),
			RetryBaseDelay:     getDurationEnv("RETRY_BASE_DELAY", "1s"),
			RateLimitPerSecond: getIntEnv("RATE_LIMIT_PER_SECOND", 20),
		},
		Sync: SyncConfig{
			BatchSize:          getIntEnv("SYNC_BATCH_SIZE", 10),
			StaleAfter:         getDurationEnv("STALE_AFTER", "24h"),
			CreativeTTL:        getDurationEnv("CREATIVE_TTL", "168h"),
			ReportSyncMode:     getEnv("REPORT_SYNC_MODE", "background"),
			BackgroundTimeout:  getDurationEnv("BACKGROUND_SYNC_TIMEOUT", "10m"),
			WeeklySyncInterval: getDurationEnv("WEEKLY_SYNC_INTERVAL", "6h"),
			LeadSyncInterval:   getDurationEnv("LEAD_SYNC_INTERVAL", "30m"),
			LookbackWeeks:      getIntEnv("SYNC_LOOKBACK_WEEKS", 4),
		},
		Tenants: TenantsConfig{
			File: getEnv("TENANTS_FILE", "tenants.json"),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			SentryDSN:   getEnv("SENTRY_DSN", ""),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
