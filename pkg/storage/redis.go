package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// TTL is the key expiry, restarted by every Put. Zero keeps keys until
	// they are overwritten.
	TTL time.Duration
}

// RedisStore keeps snapshots as JSON values under "dosimap:table:{name}",
// so several predictor instances can share one generated table.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if opts.DB < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if opts.TTL < 0 {
		return nil, errors.New("redis ttl cannot be negative")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

func tableKey(name string) string {
	return "dosimap:table:" + name
}

// Put stores the snapshot with the configured TTL, or without expiry when
// the TTL is zero.
func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, tableKey(s.Name), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot in redis: %w", err)
	}
	return nil
}

// GetLatest returns the snapshot stored under name. A missing key is not an
// error.
func (r *RedisStore) GetLatest(ctx context.Context, name string) (Snapshot, bool, error) {
	if err := ValidateName(name); err != nil {
		return Snapshot{}, false, err
	}

	data, err := r.client.Get(ctx, tableKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get snapshot from redis: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, true, nil
}

// Ping checks the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client. It is safe to call more than once.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
