package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL   string
	DBAutoMigrate bool
	MongoDBURL    string
	MongoDBName   string
	RedisURL      string

	// JWT
	JWTSecret string

	// Credentials at rest
	EncryptionKey string

	// OpenAI-compatible provider
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	LLMModel       string
	EmbeddingModel string
	LLMTimeoutSec  int

	// Classification
	ClassifyThreshold    float64
	EmbeddingCacheTTLHrs int

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Sync
	SyncPageSize   int
	SyncLockTTLSec int

	// Headless browser
	ChromePath              string
	BrowserNoSandbox        bool
	BrowserPageTimeoutSec   int
	BrowserActionTimeoutSec int
	BrowserNavAttempts      int
	BrowserAllowPrivate     bool

	// Per-user request limits on the heavy routes
	SyncRateLimitPerMin        int
	UnsubscribeRateLimitPerMin int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
		MongoDBURL:    getEnv("MONGODB_URL", ""),
		MongoDBName:   getEnv("MONGODB_DATABASE", "triage"),
		RedisURL:      getEnv("REDIS_URL", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-ada-002"),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 30),

		ClassifyThreshold:    getEnvFloat("CLASSIFY_THRESHOLD", 0.72),
		EmbeddingCacheTTLHrs: getEnvInt("EMBEDDING_CACHE_TTL_HOUR", 24),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		SyncPageSize:   getEnvInt("SYNC_PAGE_SIZE", 20),
		SyncLockTTLSec: getEnvInt("SYNC_LOCK_TTL_SEC", 600),

		ChromePath:              getEnv("CHROME_PATH", ""),
		BrowserNoSandbox:        getEnvBool("BROWSER_NO_SANDBOX", false),
		BrowserPageTimeoutSec:   getEnvInt("BROWSER_PAGE_TIMEOUT_SEC", 30),
		BrowserActionTimeoutSec: getEnvInt("BROWSER_ACTION_TIMEOUT_SEC", 5),
		BrowserNavAttempts:      getEnvInt("BROWSER_NAV_ATTEMPTS", 3),
		BrowserAllowPrivate:     getEnvBool("BROWSER_ALLOW_PRIVATE_HOSTS", false),

		SyncRateLimitPerMin:        getEnvInt("SYNC_RATE_LIMIT_PER_MIN", 5),
		UnsubscribeRateLimitPerMin: getEnvInt("UNSUBSCRIBE_RATE_LIMIT_PER_MIN", 10),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.ClassifyThreshold <= 0 || c.ClassifyThreshold > 1 {
		errs = append(errs, errors.New("CLASSIFY_THRESHOLD must be in (0, 1]"))
	}
	if c.SyncPageSize <= 0 {
		errs = append(errs, errors.New("SYNC_PAGE_SIZE must be positive"))
	}
	if c.BrowserNavAttempts <= 0 {
		errs = append(errs, errors.New("BROWSER_NAV_ATTEMPTS must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

func (c *Config) EmbeddingCacheTTL() time.Duration {
	return time.Duration(c.EmbeddingCacheTTLHrs) * time.Hour
}

func (c *Config) SyncLockTTL() time.Duration {
	return time.Duration(c.SyncLockTTLSec) * time.Second
}

func (c *Config) BrowserPageTimeout() time.Duration {
	return time.Duration(c.BrowserPageTimeoutSec) * time.Second
}

func (c *Config) BrowserActionTimeout() time.Duration {
	return time.Duration(c.BrowserActionTimeoutSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
