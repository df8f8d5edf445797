package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trade analysis backend.
type Config struct {
	Port string

	// Database
	DBPath string

	// Ingest
	UploadsDir    string
	RetentionDays int

	// Auth
	APIKey     string
	JWTSecret  string
	JWTTTLMins int

	// Window seed file (optional)
	BotsConfig string

	// Mock feed (dev only)
	UseMockFeed    bool
	MockWindows    []string
	MockIntervalMs int
	MockStartPrice float64
	MockStepAmount float64

	// HTTP surface
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Persistence batching
	WriteQueueSize  int
	BatchSize       int
	BatchIntervalMs int

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/trade_analysis.db")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		DBPath:          dbPath,
		UploadsDir:      getEnv("UPLOADS_DIR", "./data/uploads"),
		RetentionDays:   getEnvInt("RETENTION_DAYS", 7),
		APIKey:          getEnv("API_KEY", "devkey"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		JWTTTLMins:      getEnvInt("JWT_TTL_MIN", 720),
		BotsConfig:      getEnv("BOTS_CONFIG", "bots.yaml"),
		UseMockFeed:     getEnv("USE_MOCK_FEED", "false") == "true",
		MockWindows:     splitAndTrim(getEnv("MOCK_WINDOWS", "mock-1:AAPL,mock-2:TSLA")),
		MockIntervalMs:  getEnvInt("MOCK_INTERVAL_MS", 1000),
		MockStartPrice:  getEnvFloat("MOCK_START_PRICE", 100.0),
		MockStepAmount:  getEnvFloat("MOCK_STEP_AMOUNT", 0.25),
		CORSOrigins:     splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		RateLimitRPS:    getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 50),
		WriteQueueSize:  getEnvInt("WRITE_QUEUE_SIZE", 1024),
		BatchSize:       getEnvInt("BATCH_SIZE", 50),
		BatchIntervalMs: getEnvInt("BATCH_INTERVAL_MS", 500),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogPretty:       getEnv("LOG_PRETTY", "false") == "true",
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
