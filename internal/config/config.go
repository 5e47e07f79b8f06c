package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port              string
	Env               string
	LogLevel          string
	WorkerCount       int
	WorkerWaitSeconds int
	WorkerBatchSize   int

	// Conversation policy
	MaxAttempts         int
	StoreBackend        string
	ConversationTable   string
	DatabaseURL         string
	InboundQueueURL     string
	UseMemoryQueue      bool
	StoreTimeout        time.Duration
	ConversationListMax int

	// Outbound mail
	MailProvider   string
	MailDomain     string
	MailFromName   string
	SendGridAPIKey string
	MailTimeout    time.Duration
	SendLedgerTTL  time.Duration
	RawMailBucket  string
	SESTopicARN    string
	SESConfigSet   string
	// SNSSkipVerify disables SNS signature checks; honored only in dev/local.
	SNSSkipVerify  bool

	// Language model
	LLMProvider         string
	FallbackLLMProvider string
	LLMTimeout          time.Duration
	LLMMaxTokens        int
	LLMTemperature      float64
	BedrockModelID      string
	OpenAIAPIKey        string
	OpenAIModel         string
	AnthropicAPIKey     string
	AnthropicModel      string
	GeminiAPIKey        string
	GeminiModel         string

	// Callback API
	CallbackBaseURL    string
	CallbackAPIKey     string
	CallbackPathPrefix string
	CallbackTimeout    time.Duration
	HealthTimeout      time.Duration

	// Retry policy shared by outbound calls
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	APIJWTSecret   string
	APIJWTAudience string
	RateLimitRPS   float64
	RateLimitBurst int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENVIRONMENT", getEnv("ENV", "dev")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 2),
		WorkerWaitSeconds: getEnvAsInt("WORKER_WAIT_SECONDS", 20),
		WorkerBatchSize:   getEnvAsInt("WORKER_BATCH_SIZE", 5),

		MaxAttempts:         getEnvAsInt("MAX_ATTEMPTS", 4),
		StoreBackend:        lower(getEnv("STORE_BACKEND", "dynamodb")),
		ConversationTable:   getEnv("CONVERSATION_TABLE_NAME", "aime-conversations"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		InboundQueueURL:     getEnv("INBOUND_QUEUE_URL", ""),
		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", false),
		StoreTimeout:        getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),
		ConversationListMax: getEnvAsInt("CONVERSATION_LIST_MAX", 50),

		MailProvider:   lower(getEnv("MAIL_PROVIDER", "sendgrid")),
		MailDomain:     getEnv("MAIL_DOMAIN", "groupize.com"),
		MailFromName:   getEnv("MAIL_FROM_NAME", "AIME Planner"),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		MailTimeout:    getEnvAsDuration("MAIL_TIMEOUT", 30*time.Second),
		SendLedgerTTL:  getEnvAsDuration("SEND_LEDGER_TTL", 30*24*time.Hour),
		RawMailBucket:  getEnv("RAW_MAIL_BUCKET", ""),
		SESTopicARN:    getEnv("SES_TOPIC_ARN", ""),
		SESConfigSet:   getEnv("SES_CONFIGURATION_SET", ""),
		SNSSkipVerify:  getEnvAsBool("SNS_SKIP_SIGNATURE_VERIFY", false),

		LLMProvider:         lower(getEnv("LLM_PROVIDER", "bedrock")),
		FallbackLLMProvider: lower(getEnv("FALLBACK_LLM_PROVIDER", "")),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:      getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		CallbackBaseURL:    strings.TrimRight(getEnv("RAILS_API_BASE_URL", ""), "/"),
		CallbackAPIKey:     getEnv("RAILS_API_KEY", ""),
		CallbackPathPrefix: getEnv("CALLBACK_PATH_PREFIX", "/api/v1/chatbot"),
		CallbackTimeout:    getEnvAsDuration("CALLBACK_TIMEOUT", 30*time.Second),
		HealthTimeout:      getEnvAsDuration("HEALTH_TIMEOUT", 10*time.Second),

		RetryMaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 250*time.Millisecond),
		RetryMaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", 5*time.Second),

		APIJWTSecret:   getEnv("API_JWT_SECRET", ""),
		APIJWTAudience: getEnv("API_JWT_AUDIENCE", ""),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

func lower(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
