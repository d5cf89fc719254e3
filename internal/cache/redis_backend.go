package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

const scanBatch = 200

type RedisBackend struct {
	client *redisv9.Client
}

func NewRedisBackend(client *redisv9.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	return raw, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s failed: %w", key, err)
	}
	return nil
}

// DeleteMatching walks the keyspace with SCAN rather than KEYS so a large
// database is never blocked.
func (r *RedisBackend) DeleteMatching(ctx context.Context, substr string) (int, error) {
	pattern := "*" + escapeGlob(substr) + "*"
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan %s failed: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis delete matching %s failed: %w", pattern, err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (r *RedisBackend) Stats(ctx context.Context) (Stats, error) {
	info, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		return Stats{Type: r.Name(), Error: err.Error()}, fmt.Errorf("redis info failed: %w", err)
	}
	size, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{Type: r.Name(), Error: err.Error()}, fmt.Errorf("redis dbsize failed: %w", err)
	}

	stats := Stats{Type: r.Name(), Entries: size, Connected: true}
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok {
			continue
		}
		switch key {
		case "used_memory":
			stats.MemoryUsed, _ = strconv.ParseInt(value, 10, 64)
		case "used_memory_human":
			stats.MemoryHuman = value
		}
	}
	return stats, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
