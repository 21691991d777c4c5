package history

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix prefixes every room's history list.
const DefaultRedisKeyPrefix = "chat:history:"

// RedisStore appends each room's lines to a Redis list.
type RedisStore struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// NewRedisStore wraps client. maxLen caps each list; zero keeps everything.
func NewRedisStore(client *redis.Client, prefix string, maxLen int64) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		maxLen: maxLen,
	}
}

// Key returns the list key for roomID.
func (s *RedisStore) Key(roomID int) string {
	return s.prefix + strconv.Itoa(roomID)
}

// Append pushes line onto the room's list, trimming the oldest entries when a
// cap is configured.
func (s *RedisStore) Append(ctx context.Context, roomID int, line string) error {
	key := s.Key(roomID)

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, line)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, key, -s.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history to %s: %w", key, err)
	}
	return nil
}

// Lines returns the stored lines for roomID, oldest first.
func (s *RedisStore) Lines(ctx context.Context, roomID int) ([]string, error) {
	lines, err := s.client.LRange(ctx, s.Key(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history for room %d: %w", roomID, err)
	}
	return lines, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
