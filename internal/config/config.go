package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	LogLevel string
	SiteURL  string

	DBDriver    string // postgres | sqlite
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	TelegramToken   string
	TelegramBotName string

	GeminiAPIKey      string
	GeminiModel       string
	UseMockLLM        bool
	GenerationTimeout time.Duration

	Timezone   string
	DailyLimit int

	AdminUsername     string
	AdminPasswordHash string

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		SiteURL:  strings.TrimRight(getEnv("SITE_URL", "http://localhost:8080"), "/"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DatabaseURL: getEnv("DATABASE_URL", "dream.db"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  getDurationEnv("TOKEN_TTL", 30*24*time.Hour),

		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramBotName: getEnv("TELEGRAM_BOT_NAME", ""),

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		UseMockLLM:        getBoolEnv("USE_MOCK_LLM", false),
		GenerationTimeout: getDurationEnv("GENERATION_TIMEOUT", 60*time.Second),

		Timezone:   getEnv("TZ_NAME", "Europe/Moscow"),
		DailyLimit: getIntEnv("DAILY_LIMIT", 5),

		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 1),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DailyLimit <= 0 {
		return fmt.Errorf("DAILY_LIMIT must be positive, got %d", c.DailyLimit)
	}
	if c.GenerationTimeout <= 0 {
		return errors.New("GENERATION_TIMEOUT must be positive")
	}
	if !c.UseMockLLM && c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required unless USE_MOCK_LLM=true")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TZ_NAME %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
