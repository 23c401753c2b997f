package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return b.ch, nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignalFeederDecodesSignals(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 4)}
	feeder := NewSignalFeeder(bus, 4, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = feeder.Run(ctx) }()

	bus.ch <- []byte(`{
		"id": "sig-1",
		"token_address": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"type": "buy",
		"price": 1.25,
		"risk_level": "medium",
		"confidence": 0.8,
		"created_at": 1756500000,
		"expires_at": 1756500120
	}`)

	select {
	case sig := <-feeder.Signals():
		assert.Equal(t, "sig-1", sig.ID)
		assert.Equal(t, domain.SignalTypeBuy, sig.Type)
		assert.Equal(t, 1.25, sig.Price)
		assert.Equal(t, time.Unix(1756500000, 0).UTC(), sig.CreatedAt)
		assert.Equal(t, time.Unix(1756500120, 0).UTC(), sig.ExpiresAt)
	case <-time.After(time.Second):
		t.Fatal("no signal received")
	}
}

func TestSignalFeederDropsMalformedPayloads(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 4)}
	feeder := NewSignalFeeder(bus, 4, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = feeder.Run(ctx) }()

	bus.ch <- []byte(`not json`)
	bus.ch <- []byte(`{"token_address":"x","type":"buy"}`) // missing id
	bus.ch <- []byte(`{"id":"good","token_address":"x","type":"buy"}`)

	select {
	case sig := <-feeder.Signals():
		require.Equal(t, "good", sig.ID)
	case <-time.After(time.Second):
		t.Fatal("valid signal was not forwarded")
	}
}

func TestSignalFeederClosesChannelOnShutdown(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte)}
	feeder := NewSignalFeeder(bus, 4, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = feeder.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("feeder did not stop")
	}

	_, open := <-feeder.Signals()
	assert.False(t, open)
}
