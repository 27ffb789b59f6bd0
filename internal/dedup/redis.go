package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// Mirror replicates processed ids outside the local filesystem.
type Mirror interface {
	Add(ctx context.Context, ids ...crawler.RecordID) error
	Members(ctx context.Context) ([]crawler.RecordID, error)
}

// RedisMirror stores processed ids in a Redis set.
type RedisMirror struct {
	client redis.Cmdable
	key    string
}

// NewRedisMirror connects to addr. The connection is lazy; the first command
// surfaces dial errors.
func NewRedisMirror(addr string, db int, key string) *RedisMirror {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &RedisMirror{client: rdb, key: key}
}

// Add implements Mirror.
func (r *RedisMirror) Add(ctx context.Context, ids ...crawler.RecordID) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = string(id)
	}
	if err := r.client.SAdd(ctx, r.key, members...).Err(); err != nil {
		return fmt.Errorf("redis sadd failure: %w", err)
	}
	return nil
}

// Members implements Mirror.
func (r *RedisMirror) Members(ctx context.Context) ([]crawler.RecordID, error) {
	vals, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failure: %w", err)
	}
	out := make([]crawler.RecordID, len(vals))
	for i, v := range vals {
		out[i] = crawler.RecordID(v)
	}
	return out, nil
}

// Close releases the underlying client.
func (r *RedisMirror) Close() error {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
