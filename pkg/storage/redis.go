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

// DefaultRedisKeyPrefix prefixes every snapshot key.
const DefaultRedisKeyPrefix = "pricecast:snapshot:"

// RedisStore implements the Store interface using Redis as a backend, so
// several serve instances can publish and read the same forecasts.
// Snapshots expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	mu     sync.RWMutex
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL is the snapshot expiration (default two hours).
	TTL time.Duration
	// KeyPrefix defaults to DefaultRedisKeyPrefix.
	KeyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if opts.DB < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if opts.TTL == 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultRedisKeyPrefix
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    opts.TTL,
		prefix: opts.KeyPrefix,
	}, nil
}

func (r *RedisStore) key(name string) string {
	return r.prefix + name
}

// Put stores a snapshot under <prefix><series> with the store TTL.
func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	if err := ValidateSeriesName(s.Series); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.Set(ctx, r.key(s.Series), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}
	return nil
}

// GetLatest retrieves the latest snapshot of a series. A missing or expired
// key is reported as found == false with a nil error.
func (r *RedisStore) GetLatest(ctx context.Context, name string) (Snapshot, bool, error) {
	if err := ValidateSeriesName(name); err != nil {
		return Snapshot{}, false, err
	}

	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snapshot, true, nil
}

// Close closes the Redis client connection. It is idempotent.
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

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
