// Package service holds thin domain services composed from stores, caches
// and venue clients.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// TokenService resolves token metadata, caching registry lookups so repeated
// resolutions of the same mint stay off the network.
type TokenService struct {
	source domain.TokenInfoSource
	cache  domain.TokenInfoCache
	logger *slog.Logger
}

// NewTokenService creates a TokenService. cache may be nil to disable
// caching.
func NewTokenService(source domain.TokenInfoSource, cache domain.TokenInfoCache, logger *slog.Logger) *TokenService {
	return &TokenService{
		source: source,
		cache:  cache,
		logger: logger.With(slog.String("component", "token_service")),
	}
}

// Resolve returns metadata for a mint, cache-first. Registry misses are
// reported as domain.ErrNotFound.
func (s *TokenService) Resolve(ctx context.Context, tokenAddress string) (domain.TokenInfo, error) {
	if s.cache != nil {
		info, err := s.cache.Get(ctx, tokenAddress)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "token cache read failed",
				slog.String("token", tokenAddress),
				slog.String("error", err.Error()),
			)
		}
	}

	info, err := s.source.TokenInfo(ctx, tokenAddress)
	if err != nil {
		return domain.TokenInfo{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, info); err != nil {
			s.logger.WarnContext(ctx, "token cache write failed",
				slog.String("token", tokenAddress),
				slog.String("error", err.Error()),
			)
		}
	}
	return info, nil
}

// Symbol returns the token's symbol, falling back to a shortened mint when
// the registry does not know it.
func (s *TokenService) Symbol(ctx context.Context, tokenAddress string) string {
	info, err := s.Resolve(ctx, tokenAddress)
	if err != nil || info.Symbol == "" {
		if len(tokenAddress) > 8 {
			return tokenAddress[:4] + ".." + tokenAddress[len(tokenAddress)-4:]
		}
		return tokenAddress
	}
	return info.Symbol
}
