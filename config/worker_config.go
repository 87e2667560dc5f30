// Package config loads worker configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClassifierMode selects the classification backend.
type ClassifierMode string

const (
	ClassifierLLM     ClassifierMode = "llm"
	ClassifierKeyword ClassifierMode = "keyword"
)

type Config struct {
	Environment string

	// Database
	DatabaseURL string
	RedisURL    string

	// Mailbox (Microsoft Graph)
	GraphAccessToken string
	MailboxAddress   string
	GraphBaseURL     string // override for local testing

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	// Classification
	Classifier      ClassifierMode
	InstitutionName string
	ReplyGuidance   string
	KnowledgeBase   string

	// Polling
	PollInterval time.Duration
	CycleTimeout time.Duration
	FetchLimit   int
	BatchSize    int
	BatchDelay   time.Duration

	// Mailbox API rate limiting
	RateWindowRequests int
	RateWindow         time.Duration
	RateMaxConcurrent  int

	// System mail filter
	SystemSenderSubstrings []string
	SystemSubjectKeywords  []string
	SystemDomains          []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Mailbox
		GraphAccessToken: getEnv("GRAPH_ACCESS_TOKEN", ""),
		MailboxAddress:   getEnv("MAILBOX_ADDRESS", ""),
		GraphBaseURL:     getEnv("GRAPH_BASE_URL", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),

		// Classification
		Classifier:      ClassifierMode(getEnv("CLASSIFIER", string(ClassifierLLM))),
		InstitutionName: getEnv("INSTITUTION_NAME", ""),
		ReplyGuidance:   getEnv("REPLY_GUIDANCE", ""),
		KnowledgeBase:   getEnv("KNOWLEDGE_BASE", ""),

		// Polling
		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SEC", 120)) * time.Second,
		CycleTimeout: time.Duration(getEnvInt("CYCLE_TIMEOUT_SEC", 600)) * time.Second,
		FetchLimit:   getEnvInt("FETCH_LIMIT", 20),
		BatchSize:    getEnvInt("BATCH_SIZE", 1),
		BatchDelay:   time.Duration(getEnvInt("BATCH_DELAY_SEC", 300)) * time.Second,

		// Rate limiting
		RateWindowRequests: getEnvInt("RATE_WINDOW_REQUESTS", 60),
		RateWindow:         time.Duration(getEnvInt("RATE_WINDOW_SEC", 60)) * time.Second,
		RateMaxConcurrent:  getEnvInt("RATE_MAX_CONCURRENT", 4),

		// System mail filter; empty env keeps the shipped defaults
		SystemSenderSubstrings: getEnvSlice("SYSTEM_SENDER_SUBSTRINGS", nil),
		SystemSubjectKeywords:  getEnvSlice("SYSTEM_SUBJECT_KEYWORDS", nil),
		SystemDomains:          getEnvSlice("SYSTEM_DOMAINS", nil),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.GraphAccessToken == "" {
		return fmt.Errorf("GRAPH_ACCESS_TOKEN is required")
	}
	if c.MailboxAddress == "" {
		return fmt.Errorf("MAILBOX_ADDRESS is required")
	}

	switch c.Classifier {
	case ClassifierLLM:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when CLASSIFIER=llm")
		}
	case ClassifierKeyword:
	default:
		return fmt.Errorf("unknown CLASSIFIER %q (want llm or keyword)", c.Classifier)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
