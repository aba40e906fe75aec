package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	APIToken string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	VerifyToken       string
	FacebookAppID     string
	FacebookAppSecret string
	RedirectURI       string
	GraphBaseURL      string
	GraphVersion      string

	HTTPTimeout      time.Duration
	BulkWorkers      int
	TaskMaxRetries   int
	TaskPollInterval time.Duration
	TaskBackoffBase  time.Duration
}

func LoadConfig() *Config {
	// .env is optional; deployments usually set the environment directly
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		APIToken: getEnv("API_TOKEN", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "waba_gateway"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		VerifyToken:       getEnv("VERIFY_TOKEN", ""),
		FacebookAppID:     getEnv("FACEBOOK_APP_ID", ""),
		FacebookAppSecret: getEnv("FACEBOOK_APP_SECRET", ""),
		RedirectURI:       getEnv("REDIRECT_URI", ""),
		GraphBaseURL:      getEnv("GRAPH_BASE_URL", "https://graph.facebook.com"),
		GraphVersion:      getEnv("GRAPH_VERSION", "v21.0"),

		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		BulkWorkers:      getEnvInt("BULK_WORKERS", 5),
		TaskMaxRetries:   getEnvInt("TASK_MAX_RETRIES", 3),
		TaskPollInterval: getEnvDuration("TASK_POLL_INTERVAL", 2*time.Second),
		TaskBackoffBase:  getEnvDuration("TASK_BACKOFF_BASE", 5*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
