package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Qdrant      QdrantConfig
	Gemini      GeminiConfig
	Storage     StorageConfig
	Worker      WorkerConfig
	Interview   InterviewConfig
	Pricing     PricingConfig
	Persistence PersistenceConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type QdrantConfig struct {
	Enabled    bool
	URL        string
	APIKey     string
	Collection string
}

type GeminiConfig struct {
	APIKey     string
	Models     []string
	EmbedModel string
}

type StorageConfig struct {
	UploadPath  string
	MaxFileSize int64
}

type WorkerConfig struct {
	Concurrency    int
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration
}

type InterviewConfig struct {
	CoalesceWindow        time.Duration
	FollowUpDebounce      time.Duration
	FollowUpMinChars      int
	FollowUpMinConfidence float64
	DeflectionModelCheck  bool
}

type PricingConfig struct {
	File         string
	DefaultModel string
	ExchangeRate float64
	Currency     string
}

type PersistenceConfig struct {
	TurnWriteMaxAttempts int
	TurnWriteBackoff     time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "3000"),
			Env:            getEnv("ENV", "development"),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", "120s"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "interview_orchestrator"),
		},
		Qdrant: QdrantConfig{
			Enabled:    getEnvAsBool("QDRANT_ENABLED", false),
			URL:        getEnv("QDRANT_URL", "http://localhost:6333"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "interview_questions"),
		},
		Gemini: GeminiConfig{
			APIKey:     getEnv("GEMINI_API_KEY", ""),
			Models:     getEnvAsList("GEMINI_MODELS", "gemini-2.5-flash,gemini-2.0-flash,gemini-1.5-flash"),
			EmbedModel: getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		},
		Storage: StorageConfig{
			UploadPath:  getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600),
		},
		Worker: WorkerConfig{
			Concurrency:    getEnvAsInt("WORKER_CONCURRENCY", 3),
			SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", "30m"),
			SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", "1m"),
		},
		Interview: InterviewConfig{
			CoalesceWindow:        getEnvAsDuration("TRANSCRIPT_COALESCE_WINDOW", "3s"),
			FollowUpDebounce:      getEnvAsDuration("FOLLOWUP_DEBOUNCE", "10s"),
			FollowUpMinChars:      getEnvAsInt("FOLLOWUP_MIN_CHARS", 50),
			FollowUpMinConfidence: getEnvAsFloat("FOLLOWUP_MIN_CONFIDENCE", 0.7),
			DeflectionModelCheck:  getEnvAsBool("DEFLECTION_MODEL_CHECK", true),
		},
		Pricing: PricingConfig{
			File:         getEnv("PRICING_FILE", ""),
			DefaultModel: getEnv("DEFAULT_PRICING_MODEL", ""),
			ExchangeRate: getEnvAsFloat("EXCHANGE_RATE", 0),
			Currency:     getEnv("DISPLAY_CURRENCY", ""),
		},
		Persistence: PersistenceConfig{
			TurnWriteMaxAttempts: getEnvAsInt("TURN_WRITE_MAX_ATTEMPTS", 3),
			TurnWriteBackoff:     getEnvAsDuration("TURN_WRITE_BACKOFF", "100ms"),
		},
	}
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
