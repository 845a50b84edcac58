package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores keys in a redis server under a prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

type redisOptions struct {
	address  string
	password string
	db       int
	prefix   string
}

// RedisOption configures NewRedis.
type RedisOption func(*redisOptions)

// WithAddress sets the server address.
func WithAddress(addr string) RedisOption {
	return func(o *redisOptions) {
		if addr != "" {
			o.address = addr
		}
	}
}

// WithPassword sets the server password.
func WithPassword(pass string) RedisOption {
	return func(o *redisOptions) { o.password = pass }
}

// WithDB selects the logical database.
func WithDB(db int) RedisOption {
	return func(o *redisOptions) { o.db = db }
}

// WithPrefix namespaces every key.
func WithPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.prefix = prefix }
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts ...RedisOption) (*Redis, error) {
	o := &redisOptions{address: "localhost:6379"}
	for _, opt := range opts {
		opt(o)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     o.address,
		Password: o.password,
		DB:       o.db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv: ping redis %s: %w", o.address, err)
	}
	return &Redis{client: client, prefix: o.prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: redis get %q: %w", key, err)
	}
	return data, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return persistErr("kv: redis set "+key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return persistErr("kv: redis delete "+key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
