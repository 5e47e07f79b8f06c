package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENVIRONMENT", "ENV", "LOG_LEVEL", "MAX_ATTEMPTS", "MAIL_DOMAIN", "STORE_BACKEND", "RAILS_API_BASE_URL", "CALLBACK_TIMEOUT"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.MaxAttempts != 4 {
		t.Fatalf("expected default max attempts 4, got %d", cfg.MaxAttempts)
	}
	if cfg.MailDomain != "groupize.com" {
		t.Fatalf("expected default mail domain, got %s", cfg.MailDomain)
	}
	if cfg.StoreBackend != "dynamodb" {
		t.Fatalf("expected dynamodb store by default, got %s", cfg.StoreBackend)
	}
	if cfg.CallbackTimeout != 30*time.Second || cfg.HealthTimeout != 10*time.Second {
		t.Fatalf("unexpected callback timeouts %s/%s", cfg.CallbackTimeout, cfg.HealthTimeout)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("expected 3 retry attempts, got %d", cfg.RetryMaxAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("MAX_ATTEMPTS", "2")
	t.Setenv("STORE_BACKEND", " Postgres ")
	t.Setenv("RAILS_API_BASE_URL", "https://rails.example.com/")
	t.Setenv("LLM_TEMPERATURE", "0.9")
	t.Setenv("MAIL_TIMEOUT", "12s")
	t.Setenv("REDIS_TLS", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "staging" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.MaxAttempts != 2 {
		t.Fatalf("expected max attempts override, got %d", cfg.MaxAttempts)
	}
	if cfg.StoreBackend != "postgres" {
		t.Fatalf("expected normalized store backend, got %q", cfg.StoreBackend)
	}
	if cfg.CallbackBaseURL != "https://rails.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.CallbackBaseURL)
	}
	if cfg.LLMTemperature != 0.9 {
		t.Fatalf("expected temperature override, got %v", cfg.LLMTemperature)
	}
	if cfg.MailTimeout != 12*time.Second {
		t.Fatalf("expected mail timeout override, got %s", cfg.MailTimeout)
	}
	if !cfg.RedisTLS {
		t.Fatal("expected redis tls enabled")
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "many")
	t.Setenv("RETRY_BASE_DELAY", "soon")
	cfg := Load()
	if cfg.MaxAttempts != 4 {
		t.Fatalf("expected fallback max attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.RetryBaseDelay != 250*time.Millisecond {
		t.Fatalf("expected fallback base delay, got %s", cfg.RetryBaseDelay)
	}
}

func TestLoadInboundAndAPISettings(t *testing.T) {
	t.Setenv("INBOUND_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/1/aime-inbound")
	t.Setenv("WORKER_BATCH_SIZE", "8")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "")
	t.Setenv("API_JWT_AUDIENCE", "aime")
	cfg := Load()
	if cfg.InboundQueueURL == "" || cfg.WorkerBatchSize != 8 {
		t.Fatalf("unexpected worker settings: %q %d", cfg.InboundQueueURL, cfg.WorkerBatchSize)
	}
	if cfg.WorkerWaitSeconds != 20 {
		t.Fatalf("expected default long-poll wait, got %d", cfg.WorkerWaitSeconds)
	}
	if cfg.RateLimitRPS != 2.5 || cfg.RateLimitBurst != 20 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.APIJWTAudience != "aime" {
		t.Fatalf("expected audience override, got %q", cfg.APIJWTAudience)
	}
	if cfg.SNSSkipVerify {
		t.Fatalf("expected sns signature verification on by default")
	}
}
