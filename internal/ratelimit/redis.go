package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed-window counter shared by every API instance.
type RedisWindow struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisWindow(client *redis.Client, prefix string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

func (w *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	if w.limit <= 0 {
		return true, nil
	}

	slot := w.now().UnixNano() / int64(w.window)
	redisKey := fmt.Sprintf("%s:%s:%d", w.prefix, key, slot)

	pipe := w.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, w.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return incr.Val() <= w.limit, nil
}
