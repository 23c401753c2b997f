package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

func position(amount, entry, highest, trailing float64) domain.Position {
	return domain.Position{
		ID:              "pos-1",
		TokenAddress:    "So11111111111111111111111111111111111111112",
		Amount:          amount,
		EntryPrice:      entry,
		HighestPrice:    highest,
		Status:          domain.PositionStatusActive,
		TrailingStopPct: trailing,
	}
}

func TestProfitLoss(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		entry   float64
		current float64
		wantAbs float64
		wantPct float64
	}{
		{"gain", 1000, 1.0, 1.5, 500, 50},
		{"loss", 1000, 1.0, 0.79, -210, -21},
		{"flat", 1000, 1.0, 1.0, 0, 0},
		{"zero entry value", 1000, 0, 2.0, 2000, 0},
		{"zero amount", 0, 1.0, 2.0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, pct := ProfitLoss(tt.amount, tt.entry, tt.current)
			assert.InDelta(t, tt.wantAbs, abs, 1e-9)
			assert.InDelta(t, tt.wantPct, pct, 1e-9)
		})
	}
}

func TestEvaluateStopLoss(t *testing.T) {
	// -21% loss fires stop-loss regardless of trailing configuration.
	pos := position(1000, 1.0, 1.0, 20)
	trig, highest := Evaluate(pos, 0.79)
	assert.Equal(t, TriggerStopLoss, trig)
	assert.Equal(t, 1.0, highest)

	// Same with an absurdly wide trailing stop.
	pos.TrailingStopPct = 99
	trig, _ = Evaluate(pos, 0.79)
	assert.Equal(t, TriggerStopLoss, trig)
}

func TestEvaluateTrailingStop(t *testing.T) {
	// 25% drop from the peak of 2.0 with a 20% trailing stop.
	pos := position(1000, 1.0, 2.0, 20)
	trig, highest := Evaluate(pos, 1.5)
	assert.Equal(t, TriggerTrailingStop, trig)
	assert.Equal(t, 2.0, highest)
}

func TestEvaluateNone(t *testing.T) {
	// 15% drop from the peak is inside a 20% trailing stop.
	pos := position(1000, 1.0, 2.0, 20)
	trig, highest := Evaluate(pos, 1.7)
	assert.Equal(t, TriggerNone, trig)
	assert.Equal(t, 2.0, highest)
}

func TestEvaluateRaisesPeakBeforeChecks(t *testing.T) {
	// A new all-time high can never fire the trailing stop in the same pass,
	// because the observation raises the peak first.
	pos := position(1000, 1.0, 1.2, 20)
	trig, highest := Evaluate(pos, 1.6)
	assert.Equal(t, TriggerNone, trig)
	assert.Equal(t, 1.6, highest)
}

func TestEvaluatePeakIsMonotonic(t *testing.T) {
	pos := position(1000, 1.0, 1.0, 20)
	prices := []float64{1.1, 1.4, 1.3, 1.45, 1.2, 1.5, 0.9}

	peak := pos.HighestPrice
	for _, price := range prices {
		_, highest := Evaluate(pos, price)
		require.GreaterOrEqual(t, highest, peak)
		peak = highest
		pos.HighestPrice = highest
	}
	assert.Equal(t, 1.5, peak)
}

func TestEvaluateStopLossWinsWhenBothFire(t *testing.T) {
	// From a peak of 2.0 a fall to 0.75 is both a -25% loss from entry and a
	// 62.5% drop from the peak. Stop-loss is the recorded reason.
	pos := position(1000, 1.0, 2.0, 20)
	trig, _ := Evaluate(pos, 0.75)
	assert.Equal(t, TriggerStopLoss, trig)
}

func TestClassify(t *testing.T) {
	price := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		pos  domain.Position
		want Priority
	}{
		{"no cached price", position(1000, 1.0, 1.0, 20), PriorityHigh},
		{
			"approaching stop-loss",
			func() domain.Position {
				p := position(1000, 1.0, 1.0, 20)
				p.CurrentPrice = price(0.85) // -15%
				return p
			}(),
			PriorityHigh,
		},
		{
			"approaching take-profit band",
			func() domain.Position {
				p := position(1000, 1.0, 1.27, 20)
				p.CurrentPrice = price(1.27) // +27%
				return p
			}(),
			PriorityHigh,
		},
		{
			"deep loss already past the band",
			func() domain.Position {
				p := position(1000, 1.0, 1.0, 20)
				p.CurrentPrice = price(0.70) // -30%
				return p
			}(),
			PriorityRegular,
		},
		{
			"comfortable middle",
			func() domain.Position {
				p := position(1000, 1.0, 1.1, 20)
				p.CurrentPrice = price(1.05) // +5%
				return p
			}(),
			PriorityRegular,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.pos))
		})
	}
}

func TestTriggerString(t *testing.T) {
	assert.Equal(t, "stop_loss", TriggerStopLoss.String())
	assert.Equal(t, "trailing_stop", TriggerTrailingStop.String())
	assert.Equal(t, "none", TriggerNone.String())
}
