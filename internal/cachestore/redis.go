package cachestore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisKeyPrefix namespaces cache keys.
const RedisKeyPrefix = "locametry:geocache:"

// RedisOptions configures a Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis stores each entry as a JSON string with no expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a client. Connectivity is checked by Migrate.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

func redisKey(key Key) string {
	return RedisKeyPrefix + key.String()
}

// FindEntry implements Store.
func (r *Redis) FindEntry(ctx context.Context, key Key) (*Entry, error) {
	data, err := r.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cachestore: redis get %s", key)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrapf(err, "cachestore: redis decode %s", key)
	}
	return &e, nil
}

// CreateEntry implements Store.
func (r *Redis) CreateEntry(ctx context.Context, key Key, entry Entry) error {
	if b, ok := nilIfEmpty(entry.Boundary).([]byte); ok {
		entry.Boundary = b
	} else {
		entry.Boundary = nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "cachestore: redis marshal entry")
	}
	if err := r.client.Set(ctx, redisKey(key), data, 0).Err(); err != nil {
		return eris.Wrapf(err, "cachestore: redis set %s", key)
	}
	return nil
}

// DeleteAll implements Store by scanning the key prefix.
func (r *Redis) DeleteAll(ctx context.Context) (int64, error) {
	var (
		total  int64
		cursor uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, RedisKeyPrefix+"*", 500).Result()
		if err != nil {
			return total, eris.Wrap(err, "cachestore: redis scan")
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return total, eris.Wrap(err, "cachestore: redis delete")
			}
			total += n
		}
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// Migrate checks connectivity. Redis needs no schema.
func (r *Redis) Migrate(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return eris.Wrap(err, "cachestore: redis ping")
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
