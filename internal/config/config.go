package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	CORSOrigins    string
	StaffJWTSecret string
	CTIToken       string

	// Redis (event bus for CTI / dashboard push)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Recall engine
	RecallQueueURL       string
	UseMemoryQueue       bool
	RecallSendHour       int
	RecallResponseDays   int
	RecallWorkerInterval time.Duration

	// Call analysis
	BedrockModelID    string
	GeminiAPIKey      string
	GeminiModelID     string
	AnalysisJobsTable string
	RecordingsBucket  string

	// Notify
	SESFromEmail       string
	SESFromName        string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	StaffSummaryEmails string
	SummarySendHour    int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		StaffJWTSecret: getEnv("STAFF_JWT_SECRET", ""),
		CTIToken:       getEnv("CTI_TOKEN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "ap-northeast-2"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RecallQueueURL:       getEnv("RECALL_QUEUE_URL", ""),
		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		RecallSendHour:       getEnvAsInt("RECALL_SEND_HOUR", 10),
		RecallResponseDays:   getEnvAsInt("RECALL_RESPONSE_DAYS", 3),
		RecallWorkerInterval: getEnvAsDuration("RECALL_WORKER_INTERVAL", 15*time.Minute),

		BedrockModelID:    getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:     getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		AnalysisJobsTable: getEnv("ANALYSIS_JOBS_TABLE", ""),
		RecordingsBucket:  getEnv("RECORDINGS_BUCKET", ""),

		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		SESFromName:        getEnv("SES_FROM_NAME", "CatchAll CRM"),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "CatchAll CRM"),
		StaffSummaryEmails: getEnv("STAFF_SUMMARY_EMAILS", ""),
		SummarySendHour:    getEnvAsInt("SUMMARY_SEND_HOUR", 9),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
