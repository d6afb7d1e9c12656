package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the rescan pipeline. Windows that
// failed scanning are queued as block ranges and replayed by the rescan
// worker.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func queueKey() string {
	return "rescan_ranges"
}

func lockKey(start, end uint64) string {
	return fmt.Sprintf("rescanning:%d-%d", start, end)
}

// PopRange pops the next range from the queue (lowest score = smallest start
// block).
func (c *Client) PopRange(ctx context.Context) (start, end uint64, found bool, err error) {
	key := queueKey()

	// Get the first element (lowest score)
	results, err := c.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("zrange failed: %w", err)
	}

	if len(results) == 0 {
		return 0, 0, false, nil
	}

	member := results[0].Member.(string)
	start, end, err = ParseRangeString(member)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid range format: %w", err)
	}

	// Remove from queue
	if err := c.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return 0, 0, false, fmt.Errorf("zrem failed: %w", err)
	}

	return start, end, true, nil
}

// PushRange adds a range to the queue.
func (c *Client) PushRange(ctx context.Context, start, end uint64) error {
	member := fmt.Sprintf("%d-%d", start, end)
	score := float64(start)

	if err := c.rdb.ZAdd(ctx, queueKey(), redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

// QueueLength returns the number of queued rescan ranges.
func (c *Client) QueueLength(ctx context.Context) (int64, error) {
	return c.rdb.ZCard(ctx, queueKey()).Result()
}

// AcquireLock attempts to acquire a processing lock for a range.
func (c *Client) AcquireLock(ctx context.Context, start, end uint64, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKey(start, end), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseLock releases a processing lock.
func (c *Client) ReleaseLock(ctx context.Context, start, end uint64) error {
	return c.rdb.Del(ctx, lockKey(start, end)).Err()
}

// ParseRangeString parses "12000-12500" format.
func ParseRangeString(s string) (start, end uint64, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format: %s", s)
	}

	start, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start: %w", err)
	}

	end, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end: %w", err)
	}

	if start > end {
		return 0, 0, fmt.Errorf("start > end: %d > %d", start, end)
	}

	return start, end, nil
}
