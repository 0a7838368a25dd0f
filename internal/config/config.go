package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSessionSecret is only suitable for local development.
const DefaultSessionSecret = "inboxowl-dev-session-secret"

type Config struct {
	// Server settings
	ServerPort  string `yaml:"server_port"`
	ServerHost  string `yaml:"server_host"`
	FrontendDir string `yaml:"frontend_dir"` // Optional prebuilt SPA to serve
	FrontendURL string `yaml:"frontend_url"` // Where to redirect after login

	// Database settings
	DatabaseURL string `yaml:"database_url"`

	// Google OAuth settings
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	GoogleRedirectURL  string `yaml:"google_redirect_url"`
	SessionSecret      string `yaml:"session_secret"`

	// OpenAI settings; an empty key disables generative analysis
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// Redis settings; an empty address selects the in-process cache
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	CacheMaxKeys  int    `yaml:"cache_max_keys"`

	// Gmail sync settings
	SyncMaxResults   int `yaml:"sync_max_results"`
	SyncBatchSize    int `yaml:"sync_batch_size"`
	SyncBatchDelayMS int `yaml:"sync_batch_delay_ms"`
	SyncThrottleSecs int `yaml:"sync_throttle_secs"`
	MessageCacheTTLH int `yaml:"message_cache_ttl_hours"`

	// Rule engine settings
	UnknownFieldPolicy string `yaml:"unknown_field_policy"` // "match" or "nomatch"

	// Logging settings
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "console"
}

func defaults() *Config {
	return &Config{
		ServerPort:         "8080",
		ServerHost:         "localhost",
		FrontendURL:        "/",
		DatabaseURL:        "postgres://localhost:5432/inboxowl?sslmode=disable",
		GoogleRedirectURL:  "http://localhost:8080/auth/callback",
		SessionSecret:      DefaultSessionSecret,
		OpenAIModel:        "gpt-4o-mini",
		OpenAIBaseURL:      "https://api.openai.com/v1",
		CacheMaxKeys:       1000,
		SyncMaxResults:     20,
		SyncBatchSize:      3,
		SyncBatchDelayMS:   500,
		SyncThrottleSecs:   15,
		MessageCacheTTLH:   24,
		UnknownFieldPolicy: "match",
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Load reads configuration from an optional YAML file (CONFIG_FILE) and then
// environment variables, which take precedence. A .env file is loaded if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	overrideFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

func overrideFromEnv(cfg *Config) {
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.ServerHost = getEnv("SERVER_HOST", cfg.ServerHost)
	cfg.FrontendDir = getEnv("FRONTEND_DIR", cfg.FrontendDir)
	cfg.FrontendURL = getEnv("FRONTEND_URL", cfg.FrontendURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", cfg.GoogleClientID)
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret)
	cfg.GoogleRedirectURL = getEnv("GOOGLE_REDIRECT_URL", cfg.GoogleRedirectURL)
	cfg.SessionSecret = getEnv("SESSION_SECRET", cfg.SessionSecret)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.CacheMaxKeys = getEnvInt("CACHE_MAX_KEYS", cfg.CacheMaxKeys)
	cfg.SyncMaxResults = getEnvInt("SYNC_MAX_RESULTS", cfg.SyncMaxResults)
	cfg.SyncBatchSize = getEnvInt("SYNC_BATCH_SIZE", cfg.SyncBatchSize)
	cfg.SyncBatchDelayMS = getEnvInt("SYNC_BATCH_DELAY_MS", cfg.SyncBatchDelayMS)
	cfg.SyncThrottleSecs = getEnvInt("SYNC_THROTTLE_SECONDS", cfg.SyncThrottleSecs)
	cfg.MessageCacheTTLH = getEnvInt("MESSAGE_CACHE_TTL_HOURS", cfg.MessageCacheTTLH)
	cfg.UnknownFieldPolicy = getEnv("RULES_UNKNOWN_FIELD_POLICY", cfg.UnknownFieldPolicy)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
}

// Validate checks required fields and numeric ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}
	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive")
	}
	if c.SyncMaxResults <= 0 {
		return fmt.Errorf("SYNC_MAX_RESULTS must be positive")
	}
	return nil
}

func (c *Config) SyncBatchDelay() time.Duration {
	return time.Duration(c.SyncBatchDelayMS) * time.Millisecond
}

func (c *Config) SyncThrottleWindow() time.Duration {
	return time.Duration(c.SyncThrottleSecs) * time.Second
}

func (c *Config) MessageCacheTTL() time.Duration {
	return time.Duration(c.MessageCacheTTLH) * time.Hour
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
