package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisNamespace = "outfred:"
	redisChannel   = "outfred:storage:changes"
)

// RedisStore shares device storage between gateway instances. Change events
// travel over a pub/sub channel so every instance sees every write.
type RedisStore struct {
	rdb      *redis.Client
	pubsub   *redis.PubSub
	watchers watchers
	logger   *zap.Logger
	done     chan struct{}
}

// NewRedisStore subscribes to the change channel before returning, so writes
// made right after construction are observed.
func NewRedisStore(ctx context.Context, rdb *redis.Client, logger *zap.Logger) (*RedisStore, error) {
	ps := rdb.Subscribe(ctx, redisChannel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", redisChannel, err)
	}

	s := &RedisStore{
		rdb:    rdb,
		pubsub: ps,
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.listen()

	return s, nil
}

// OpenRedis parses a redis:// URL and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) listen() {
	defer close(s.done)

	for msg := range s.pubsub.Channel() {
		var c Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			s.logger.Warn("dropping malformed storage change", zap.String("payload", msg.Payload), zap.Error(err))
			continue
		}
		s.watchers.notify(c)
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, redisNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, redisNamespace+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return s.publish(ctx, Change{Key: key, Op: OpSet})
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, redisNamespace+key).Result()
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	if n == 0 {
		return nil
	}
	return s.publish(ctx, Change{Key: key, Op: OpDelete})
}

func (s *RedisStore) Watch(prefix string, fn func(Change)) func() {
	return s.watchers.add(prefix, fn)
}

// Close stops the change listener. The redis client itself is owned by the caller.
func (s *RedisStore) Close() error {
	err := s.pubsub.Close()
	<-s.done
	return err
}

func (s *RedisStore) publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, redisChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish change for %s: %w", c.Key, err)
	}
	return nil
}
