// Package feed bridges external inputs into the trading core: buy signals
// arriving on the message bus and streaming price updates.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// signalChannel is the bus channel upstream signal producers publish to.
const signalChannel = "signals"

// busSignal is the wire format signals arrive in.
type busSignal struct {
	ID           string  `json:"id"`
	TokenAddress string  `json:"token_address"`
	Type         string  `json:"type"`
	Price        float64 `json:"price"`
	RiskLevel    string  `json:"risk_level"`
	Confidence   float64 `json:"confidence"`
	CreatedAt    int64   `json:"created_at"`  // Unix seconds
	ExpiresAt    int64   `json:"expires_at"`  // Unix seconds, 0 = no expiry
}

// SignalFeeder subscribes to the bus and converts incoming payloads into
// typed buy signals for the executor.
type SignalFeeder struct {
	bus    domain.SignalBus
	out    chan domain.BuySignal
	logger *slog.Logger
}

// NewSignalFeeder creates a SignalFeeder with an output buffer of size buf.
func NewSignalFeeder(bus domain.SignalBus, buf int, logger *slog.Logger) *SignalFeeder {
	if buf <= 0 {
		buf = 64
	}
	return &SignalFeeder{
		bus:    bus,
		out:    make(chan domain.BuySignal, buf),
		logger: logger.With(slog.String("component", "signal_feeder")),
	}
}

// Signals returns the channel the executor consumes from. It is closed when
// Run returns.
func (f *SignalFeeder) Signals() <-chan domain.BuySignal {
	return f.out
}

// Run subscribes to the bus and forwards decoded signals until the context is
// cancelled. Malformed payloads are logged and dropped.
func (f *SignalFeeder) Run(ctx context.Context) error {
	defer close(f.out)

	msgs, err := f.bus.Subscribe(ctx, signalChannel)
	if err != nil {
		return err
	}
	f.logger.Info("signal feeder started", slog.String("channel", signalChannel))
	defer f.logger.Info("signal feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}

			var raw busSignal
			if err := json.Unmarshal(payload, &raw); err != nil {
				f.logger.WarnContext(ctx, "malformed signal payload dropped",
					slog.String("error", err.Error()),
				)
				continue
			}
			if raw.ID == "" || raw.TokenAddress == "" {
				f.logger.WarnContext(ctx, "signal missing id or token, dropped")
				continue
			}

			sig := domain.BuySignal{
				ID:           raw.ID,
				TokenAddress: raw.TokenAddress,
				Type:         domain.SignalType(raw.Type),
				Price:        raw.Price,
				RiskLevel:    raw.RiskLevel,
				Confidence:   raw.Confidence,
			}
			if raw.CreatedAt > 0 {
				sig.CreatedAt = time.Unix(raw.CreatedAt, 0).UTC()
			}
			if raw.ExpiresAt > 0 {
				sig.ExpiresAt = time.Unix(raw.ExpiresAt, 0).UTC()
			}

			select {
			case f.out <- sig:
			case <-ctx.Done():
				return ctx.Err()
			default:
				f.logger.WarnContext(ctx, "signal buffer full, dropping",
					slog.String("signal_id", sig.ID),
				)
			}
		}
	}
}
