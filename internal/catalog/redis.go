package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long an entry survives without activity.
	DefaultTTL = 60 * time.Minute
	// DefaultPrefix namespaces catalog keys.
	DefaultPrefix = "codebox:session:"
)

// Redis is a Catalog backed by Redis string keys holding JSON entries.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to the Redis server at url and verifies the connection.
func NewRedis(ctx context.Context, url, prefix string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return newRedis(client, prefix, ttl), nil
}

func newRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(digest string) string {
	return r.prefix + digest
}

// Put stores e and refreshes its TTL.
func (r *Redis) Put(ctx context.Context, e Entry) error {
	data, err := sonic.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(e.Digest), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store catalog entry: %w", err)
	}
	return nil
}

// Delete removes the entry for digest.
func (r *Redis) Delete(ctx context.Context, digest string) error {
	if err := r.client.Del(ctx, r.key(digest)).Err(); err != nil {
		return fmt.Errorf("failed to delete catalog entry: %w", err)
	}
	return nil
}

// List scans every entry under the prefix.
func (r *Redis) List(ctx context.Context) ([]Entry, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan catalog: %w", err)
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	entries := make([]Entry, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Expired between SCAN and MGET.
			continue
		}
		e, err := decodeEntry(s)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", strings.TrimPrefix(keys[i], r.prefix), err)
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func decodeEntry(s string) (Entry, error) {
	var e Entry
	if err := sonic.UnmarshalString(s, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
