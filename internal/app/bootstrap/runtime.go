package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/groupize/aime-planner-chatbot/internal/config"
	"github.com/groupize/aime-planner-chatbot/internal/conversation"
	"github.com/groupize/aime-planner-chatbot/internal/notify"
	"github.com/groupize/aime-planner-chatbot/internal/retry"
	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSendLedger returns the Redis ledger when Redis is available and the
// process-local ledger otherwise. The local ledger only deduplicates within
// one process, so multi-instance deployments need Redis.
func BuildSendLedger(redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) conversation.SendLedger {
	if redisClient == nil {
		if logger != nil {
			logger.Warn("send ledger is process-local; configure REDIS_ADDR for cross-instance dedup")
		}
		return conversation.NewMemoryLedger()
	}
	return notify.NewRedisLedger(redisClient, ttl)
}

// BuildRetryPolicy converts the configured retry knobs into a policy.
func BuildRetryPolicy(cfg *appconfig.Config) retry.Policy {
	policy := retry.Default()
	if cfg == nil {
		return policy
	}
	if cfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		policy.MaxDelay = cfg.RetryMaxDelay
	}
	return policy
}
