package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

const tokenInfoTTL = 30 * time.Minute

// TokenInfoCache implements domain.TokenInfoCache using Redis strings with
// JSON-serialized token metadata. Metadata changes rarely, so a long TTL is
// fine.
type TokenInfoCache struct {
	rdb *redis.Client
}

// NewTokenInfoCache creates a TokenInfoCache backed by the given Client.
func NewTokenInfoCache(c *Client) *TokenInfoCache {
	return &TokenInfoCache{rdb: c.Underlying()}
}

func tokenKey(mint string) string {
	return "token:" + mint
}

// Set stores token metadata with a 30-minute TTL.
func (tc *TokenInfoCache) Set(ctx context.Context, info domain.TokenInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("redis: marshal token %s: %w", info.Address, err)
	}
	if err := tc.rdb.Set(ctx, tokenKey(info.Address), data, tokenInfoTTL).Err(); err != nil {
		return fmt.Errorf("redis: set token %s: %w", info.Address, err)
	}
	return nil
}

// Get retrieves token metadata by mint address.
// It returns domain.ErrNotFound when the key does not exist.
func (tc *TokenInfoCache) Get(ctx context.Context, tokenAddress string) (domain.TokenInfo, error) {
	data, err := tc.rdb.Get(ctx, tokenKey(tokenAddress)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.TokenInfo{}, domain.ErrNotFound
		}
		return domain.TokenInfo{}, fmt.Errorf("redis: get token %s: %w", tokenAddress, err)
	}

	var info domain.TokenInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("redis: unmarshal token %s: %w", tokenAddress, err)
	}
	return info, nil
}

// Invalidate removes token metadata from the cache.
func (tc *TokenInfoCache) Invalidate(ctx context.Context, tokenAddress string) error {
	if err := tc.rdb.Del(ctx, tokenKey(tokenAddress)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate token %s: %w", tokenAddress, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.TokenInfoCache = (*TokenInfoCache)(nil)
