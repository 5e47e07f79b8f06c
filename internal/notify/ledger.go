package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/groupize/aime-planner-chatbot/internal/conversation"
)

// RedisLedger records delivered sends so a retried operation never mails
// the same step twice across processes.
type RedisLedger struct {
	redis *redis.Client
	ttl   time.Duration
}

var _ conversation.SendLedger = (*RedisLedger)(nil)

// NewRedisLedger creates a ledger. ttl <= 0 keeps entries forever.
func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if client == nil {
		panic("notify: redis client cannot be nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisLedger{redis: client, ttl: ttl}
}

func (l *RedisLedger) key(token string) string {
	return fmt.Sprintf("aime:send:%s", token)
}

// Lookup returns the delivery id recorded for token.
func (l *RedisLedger) Lookup(ctx context.Context, token string) (string, bool, error) {
	id, err := l.redis.Get(ctx, l.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("notify: ledger lookup: %w", err)
	}
	return id, true, nil
}

// Record stores the delivery id unless one is already present.
func (l *RedisLedger) Record(ctx context.Context, token, deliveryID string) error {
	if err := l.redis.SetNX(ctx, l.key(token), deliveryID, l.ttl).Err(); err != nil {
		return fmt.Errorf("notify: ledger record: %w", err)
	}
	return nil
}
