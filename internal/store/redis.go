package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gravitas-games/cellplan/internal/cluster"
	"github.com/gravitas-games/cellplan/internal/plane"
)

// Redis keeps the token blacklist and cached tilings.
type Redis struct {
	client          *redis.Client
	blacklistPrefix string
	tilingPrefix    string
	tilingTTL       time.Duration
}

// Options holds the key layout and cache lifetime.
type Options struct {
	BlacklistPrefix string
	TilingPrefix    string
	TilingTTL       time.Duration // 0 disables the tiling cache
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts Options) *Redis {
	return &Redis{
		client:          client,
		blacklistPrefix: opts.BlacklistPrefix,
		tilingPrefix:    opts.TilingPrefix,
		tilingTTL:       opts.TilingTTL,
	}
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string, db int, opts Options) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedis(client, opts), nil
}

// Close closes the client.
func (s *Redis) Close() error {
	return s.client.Close()
}

// IsBlacklisted reports whether the login server revoked userID.
func (s *Redis) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.BlacklistKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}

// LoadTiling returns a cached tiling. ok is false on a miss or when the
// cache is disabled.
func (s *Redis) LoadTiling(ctx context.Context, key string, n int) (res cluster.Result, ok bool, err error) {
	if s.tilingTTL <= 0 {
		return cluster.Result{}, false, nil
	}
	data, err := s.client.Get(ctx, s.TilingKey(key, n)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cluster.Result{}, false, nil
	}
	if err != nil {
		return cluster.Result{}, false, fmt.Errorf("failed to load tiling: %w", err)
	}
	res, err = DecodeTiling(data)
	if err != nil {
		return cluster.Result{}, false, err
	}
	return res, true, nil
}

// SaveTiling caches res for the configured TTL.
func (s *Redis) SaveTiling(ctx context.Context, key string, res cluster.Result) error {
	if s.tilingTTL <= 0 {
		return nil
	}
	data, err := EncodeTiling(res)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.TilingKey(key, res.N), data, s.tilingTTL).Err(); err != nil {
		return fmt.Errorf("failed to save tiling: %w", err)
	}
	return nil
}

// BlacklistKey returns the key the login server sets for a revoked user.
func (s *Redis) BlacklistKey(userID string) string {
	return s.blacklistPrefix + userID
}

// TilingKey returns the cache key of the tiling of n under tiler key.
func (s *Redis) TilingKey(key string, n int) string {
	return s.tilingPrefix + key + "/" + strconv.Itoa(n)
}

// EncodeTiling serializes a tiling for the cache.
func EncodeTiling(res cluster.Result) ([]byte, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tiling: %w", err)
	}
	return data, nil
}

// DecodeTiling parses a cached tiling.
func DecodeTiling(data []byte) (cluster.Result, error) {
	var res cluster.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return cluster.Result{}, fmt.Errorf("failed to decode tiling: %w", err)
	}
	if res.N < 1 {
		return cluster.Result{}, fmt.Errorf("failed to decode tiling: bad cluster size %d", res.N)
	}
	groups := min(res.N, plane.MaxGroups)
	for _, c := range res.Cells {
		if c.Color < 1 || int(c.Color) > groups {
			return cluster.Result{}, fmt.Errorf("failed to decode tiling: cell %v has color %d outside 1..%d", c.Coord, c.Color, groups)
		}
	}
	return res, nil
}
