package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StateKey      = "livetiming:state"
	ActiveKey     = "livetiming:active"
	UpdateChannel = "livetiming:updates"

	DefaultTTL = time.Hour
)

// StateRedisRepo mirrors every broadcast payload into Redis so other processes can read the
// last document or follow updates on a pub/sub channel
type StateRedisRepo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStateRedisRepo connects to redisURL, which may be a redis:// URL or a bare host:port
func NewStateRedisRepo(redisURL, password string, ttl time.Duration) (*StateRedisRepo, error) {
	opts, err := redisOptions(redisURL, password)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStateRedisRepoWithClient(rdb, ttl), nil
}

// NewStateRedisRepoWithClient wraps an existing client
func NewStateRedisRepoWithClient(client *redis.Client, ttl time.Duration) *StateRedisRepo {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StateRedisRepo{client: client, ttl: ttl}
}

func redisOptions(redisURL, password string) (*redis.Options, error) {
	var opts *redis.Options
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: redisURL}
	}
	if password != "" {
		opts.Password = password
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return opts, nil
}

// MirrorState stores payload with the configured TTL and publishes it
func (r *StateRedisRepo) MirrorState(ctx context.Context, payload []byte, active bool) error {
	if r == nil || r.client == nil {
		// No-op when Redis is not configured
		return nil
	}
	activeFlag := "0"
	if active {
		activeFlag = "1"
	}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, StateKey, payload, r.ttl)
		pipe.Set(ctx, ActiveKey, activeFlag, r.ttl)
		pipe.Publish(ctx, UpdateChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror state: %w", err)
	}
	return nil
}

// GetState returns the last mirrored payload, or nil when nothing is stored
func (r *StateRedisRepo) GetState(ctx context.Context) ([]byte, bool, error) {
	if r == nil || r.client == nil {
		return nil, false, nil
	}

	values, err := r.client.MGet(ctx, StateKey, ActiveKey).Result()
	if err != nil {
		return nil, false, err
	}
	payload, ok := values[0].(string)
	if !ok {
		return nil, false, nil // Not found
	}
	flag, _ := values[1].(string)
	return []byte(payload), flag == "1", nil
}

// Subscribe follows the update channel. The caller closes the returned PubSub.
func (r *StateRedisRepo) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis not configured")
	}
	sub := r.client.Subscribe(ctx, UpdateChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

func (r *StateRedisRepo) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
