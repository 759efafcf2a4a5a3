package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisThrottleMaxRetries = 5

// RedisThrottleStore backs the login throttle with a Redis hash per client
// address. Read-modify-write runs under WATCH so concurrent failures from the
// same address never lose an increment.
type RedisThrottleStore struct {
	client *redis.Client
	prefix string
}

func NewRedisThrottleStore(client *redis.Client, prefix string) *RedisThrottleStore {
	if prefix == "" {
		prefix = "login_throttle"
	}
	return &RedisThrottleStore{client: client, prefix: prefix}
}

func (s *RedisThrottleStore) key(addr string) string {
	return s.prefix + ":" + addr
}

func (s *RedisThrottleStore) Get(ctx context.Context, key string) (ThrottleState, error) {
	values, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return ThrottleState{}, fmt.Errorf("throttle get: %w", err)
	}
	return parseThrottleHash(values)
}

func (s *RedisThrottleStore) Update(ctx context.Context, key string, fn func(ThrottleState) (ThrottleState, time.Duration)) (ThrottleState, error) {
	redisKey := s.key(key)
	var result ThrottleState
	txn := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, redisKey).Result()
		if err != nil {
			return err
		}
		current, err := parseThrottleHash(values)
		if err != nil {
			return err
		}
		next, ttl := fn(current)
		result = next
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl <= 0 {
				pipe.Del(ctx, redisKey)
				return nil
			}
			pipe.HSet(ctx, redisKey,
				"attempts", strconv.Itoa(next.Attempts),
				"lock_until_ms", strconv.FormatInt(lockUntilMillis(next), 10),
			)
			pipe.PExpire(ctx, redisKey, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < redisThrottleMaxRetries; i++ {
		err := s.client.Watch(ctx, txn, redisKey)
		if err == nil {
			return result, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return ThrottleState{}, fmt.Errorf("throttle update: %w", err)
	}
	return ThrottleState{}, fmt.Errorf("throttle update: too many conflicting writers for %q", key)
}

func (s *RedisThrottleStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("throttle clear: %w", err)
	}
	return nil
}

func parseThrottleHash(values map[string]string) (ThrottleState, error) {
	if len(values) == 0 {
		return ThrottleState{}, nil
	}
	var state ThrottleState
	if raw, ok := values["attempts"]; ok {
		attempts, err := strconv.Atoi(raw)
		if err != nil {
			return ThrottleState{}, fmt.Errorf("malformed throttle attempts %q: %w", raw, err)
		}
		state.Attempts = attempts
	}
	if raw, ok := values["lock_until_ms"]; ok {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ThrottleState{}, fmt.Errorf("malformed throttle lock_until_ms %q: %w", raw, err)
		}
		if ms > 0 {
			state.LockUntil = time.UnixMilli(ms)
		}
	}
	return state, nil
}

func lockUntilMillis(state ThrottleState) int64 {
	if state.LockUntil.IsZero() {
		return 0
	}
	return state.LockUntil.UnixMilli()
}
