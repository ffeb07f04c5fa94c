// Package revalidate implements a Redis response cache keyed by revalidation tags.
// Every entry records the versions of the tags it depends on; bumping a tag makes
// those entries unreachable so the next read recomputes them.
package revalidate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix      = "stockbook:cache:"
	tagPrefix      = "stockbook:tag:"
	DefaultChannel = "stockbook.revalidate"
)

// Loader computes a fresh value on a cache miss.
type Loader func(ctx context.Context) (any, error)

// Cache is a tag-versioned JSON cache.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	channel string
	logger  *slog.Logger
	group   singleflight.Group
}

// New constructs a Cache. A nil client yields a pass-through cache.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, channel: DefaultChannel, logger: logger}
}

// Fetch decodes the cached value for key into dest or runs loader to fill it.
// Concurrent misses for the same key and tag versions share one loader call.
func (c *Cache) Fetch(ctx context.Context, key string, tags []string, dest any, loader Loader) error {
	if loader == nil {
		return errors.New("revalidate: loader required")
	}
	if c == nil || c.client == nil {
		return load(ctx, dest, loader)
	}
	full, err := c.versionedKey(ctx, key, tags)
	if err != nil {
		c.logger.Warn("revalidate: tag versions unavailable", slog.String("key", key), slog.Any("error", err))
		return load(ctx, dest, loader)
	}
	payload, err := c.client.Get(ctx, full).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.Warn("revalidate: cache read failed", slog.String("key", full), slog.Any("error", err))
	}
	raw, err, _ := c.group.Do(full, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, full, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("revalidate: cache write failed", slog.String("key", full), slog.Any("error", err))
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Revalidate bumps the version of each tag and announces the bump.
func (c *Cache) Revalidate(ctx context.Context, tags ...string) error {
	if c == nil || c.client == nil || len(tags) == 0 {
		return nil
	}
	tags = dedupe(tags)
	pipe := c.client.TxPipeline()
	for _, tag := range tags {
		pipe.Incr(ctx, tagPrefix+tag)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return c.client.Publish(ctx, c.channel, strings.Join(tags, ",")).Err()
}

// Version returns the current version of tag, 0 when it was never bumped.
func (c *Cache) Version(ctx context.Context, tag string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	v, err := c.client.Get(ctx, tagPrefix+tag).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Listen calls fn with the tags of every revalidation published until ctx ends.
func (c *Cache) Listen(ctx context.Context, fn func(tags []string)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, c.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != "" {
					fn(strings.Split(msg.Payload, ","))
				}
			}
		}
	}()
	return nil
}

func (c *Cache) versionedKey(ctx context.Context, key string, tags []string) (string, error) {
	if len(tags) == 0 {
		return keyPrefix + key, nil
	}
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = tagPrefix + tag
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteString(key)
	b.WriteString("@")
	for i, v := range values {
		if i > 0 {
			b.WriteByte('.')
		}
		switch s := v.(type) {
		case string:
			b.WriteString(s)
		default:
			b.WriteString("0")
		}
	}
	return b.String(), nil
}

func load(ctx context.Context, dest any, loader Loader) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0:0]
	for _, tag := range tags {
		if _, ok := seen[tag]; ok || tag == "" {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Key joins parts into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// IntPart formats an id for Key.
func IntPart(v int64) string {
	return strconv.FormatInt(v, 10)
}
