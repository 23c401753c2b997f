package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

type stubSource struct {
	info  domain.TokenInfo
	err   error
	calls int
}

func (s *stubSource) TokenInfo(_ context.Context, _ string) (domain.TokenInfo, error) {
	s.calls++
	if s.err != nil {
		return domain.TokenInfo{}, s.err
	}
	return s.info, nil
}

type mapTokenCache struct {
	entries map[string]domain.TokenInfo
}

func newMapTokenCache() *mapTokenCache {
	return &mapTokenCache{entries: make(map[string]domain.TokenInfo)}
}

func (c *mapTokenCache) Set(_ context.Context, info domain.TokenInfo) error {
	c.entries[info.Address] = info
	return nil
}

func (c *mapTokenCache) Get(_ context.Context, addr string) (domain.TokenInfo, error) {
	info, ok := c.entries[addr]
	if !ok {
		return domain.TokenInfo{}, domain.ErrNotFound
	}
	return info, nil
}

func (c *mapTokenCache) Invalidate(_ context.Context, addr string) error {
	delete(c.entries, addr)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const mint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func TestResolveCachesRegistryLookups(t *testing.T) {
	source := &stubSource{info: domain.TokenInfo{Address: mint, Symbol: "USDC", Decimals: 6}}
	cache := newMapTokenCache()
	svc := NewTokenService(source, cache, discard())

	info, err := svc.Resolve(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, "USDC", info.Symbol)

	// Second resolve hits the cache.
	_, err = svc.Resolve(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
}

func TestResolveUnknownMint(t *testing.T) {
	source := &stubSource{err: domain.ErrNotFound}
	svc := NewTokenService(source, newMapTokenCache(), discard())

	_, err := svc.Resolve(context.Background(), mint)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveWithoutCache(t *testing.T) {
	source := &stubSource{info: domain.TokenInfo{Address: mint, Symbol: "USDC"}}
	svc := NewTokenService(source, nil, discard())

	info, err := svc.Resolve(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, "USDC", info.Symbol)
}

func TestSymbolFallsBackToShortenedMint(t *testing.T) {
	source := &stubSource{err: errors.New("registry down")}
	svc := NewTokenService(source, nil, discard())

	sym := svc.Symbol(context.Background(), mint)
	assert.Equal(t, "EPjF..Dt1v", sym)
}

func TestSymbolUsesRegistrySymbol(t *testing.T) {
	source := &stubSource{info: domain.TokenInfo{Address: mint, Symbol: "USDC"}}
	svc := NewTokenService(source, nil, discard())

	assert.Equal(t, "USDC", svc.Symbol(context.Background(), mint))
}
