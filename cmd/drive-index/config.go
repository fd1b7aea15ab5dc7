package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/services"
)

// config is the process configuration, read from the environment
type config struct {
	databaseURL string
	redisURL    string

	host           string
	port           int
	jwtSecret      string
	operatorKey    string // bcrypt hash
	allowedOrigins []string

	workerConcurrency int
	fileConcurrency   int
	liveness          time.Duration
	retryMaxAttempts  int

	sourceRPS   float64
	sourceBurst int

	ingestPollInterval time.Duration
	ingestBatchSize    int
	indexRefresh       time.Duration

	scopes           []string
	crawlInterval    time.Duration
	schedulerEnabled bool
	taxonomyFile     string

	credentialsFile string
	tokenFile       string
}

func loadConfig() config {
	return config{
		databaseURL: getEnv("DATABASE_URL", ""),
		redisURL:    getEnv("REDIS_URL", ""),

		host:           getEnv("HOST", "0.0.0.0"),
		port:           getEnvInt("PORT", 8080),
		jwtSecret:      getEnv("JWT_SECRET", "development-secret-change-in-production"),
		operatorKey:    getEnv("OPERATOR_KEY_HASH", ""),
		allowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		workerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		fileConcurrency:   getEnvInt("FILE_CONCURRENCY", services.DefaultFileConcurrency),
		liveness:          getEnvDuration("LIVENESS_WINDOW", domain.DefaultLivenessWindow),
		retryMaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", services.DefaultRetryConfig().MaxRetries+1),

		sourceRPS:   getEnvFloat("SOURCE_RPS", 8),
		sourceBurst: getEnvInt("SOURCE_BURST", 10),

		ingestPollInterval: getEnvDuration("INGEST_POLL_INTERVAL", services.DefaultIngestPollInterval),
		ingestBatchSize:    getEnvInt("INGEST_BATCH_SIZE", services.DefaultIngestBatchSize),
		indexRefresh:       getEnvDuration("INDEX_REFRESH_INTERVAL", time.Minute),

		scopes:           getEnvList("CRAWL_SCOPES"),
		crawlInterval:    getEnvDuration("CRAWL_INTERVAL", services.DefaultCrawlInterval),
		schedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		taxonomyFile:     getEnv("TAXONOMY_FILE", ""),

		credentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		tokenFile:       getEnv("GOOGLE_TOKEN_FILE", ""),
	}
}

// durable reports whether stores outlive the process
func (c config) durable() bool {
	return c.databaseURL != "" && c.databaseURL != "memory"
}

func (c config) retry() services.RetryConfig {
	cfg := services.DefaultRetryConfig()
	if c.retryMaxAttempts > 0 {
		cfg.MaxRetries = c.retryMaxAttempts - 1
	}
	return cfg
}

func (c config) validateWorker() error {
	if len(c.scopes) == 0 {
		return fmt.Errorf("CRAWL_SCOPES is required")
	}
	if c.credentialsFile == "" {
		return fmt.Errorf("GOOGLE_CREDENTIALS_FILE is required")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
