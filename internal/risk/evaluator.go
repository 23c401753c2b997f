// Package risk computes profit/loss and exit-trigger decisions from position
// state and a fresh price observation. Everything here is a pure function:
// no I/O, no hidden state, so the manager and the tests can drive it with
// arbitrary inputs.
package risk

import "github.com/alanyoungcy/soltraderbot/internal/domain"

// StopLossPct is the fixed loss threshold, in percent, at which a position is
// force-closed regardless of its trailing-stop configuration.
const StopLossPct = -20.0

// Trigger is a computed exit decision.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerStopLoss
	TriggerTrailingStop
)

// String returns the trigger name for logs and events.
func (t Trigger) String() string {
	switch t {
	case TriggerStopLoss:
		return "stop_loss"
	case TriggerTrailingStop:
		return "trailing_stop"
	default:
		return "none"
	}
}

// ProfitLoss returns the absolute and percentage profit/loss for a holding of
// amount raw units entered at entryPrice and now priced at currentPrice.
// The percentage is 0 when the entry value is 0.
func ProfitLoss(amount, entryPrice, currentPrice float64) (absolute, percentage float64) {
	entryValue := amount * entryPrice
	currentValue := amount * currentPrice
	absolute = currentValue - entryValue
	if entryValue == 0 {
		return absolute, 0
	}
	return absolute, (currentValue - entryValue) / entryValue * 100
}

// Evaluate checks a fresh price observation against the position's exit
// thresholds and returns the trigger decision together with the updated
// running peak.
//
// The order is deliberate and fixed: the observation raises the peak before
// any threshold check, and stop-loss is checked before trailing-stop so that
// when both conditions hold in the same pass, stop-loss is the recorded
// reason.
func Evaluate(pos domain.Position, observedPrice float64) (Trigger, float64) {
	highest := pos.HighestPrice
	if observedPrice > highest {
		highest = observedPrice
	}

	_, pct := ProfitLoss(pos.Amount, pos.EntryPrice, observedPrice)
	if pct <= StopLossPct {
		return TriggerStopLoss, highest
	}

	if highest > 0 {
		drop := (highest - observedPrice) / highest * 100
		if drop >= pos.TrailingStopPct {
			return TriggerTrailingStop, highest
		}
	}

	return TriggerNone, highest
}

// Priority classifies a position for processing order within one monitor
// pass. The classification costs nothing: it only reads cached state.
type Priority int

const (
	PriorityRegular Priority = iota
	PriorityHigh
)

// Classify marks a position high priority when its last known percentage is
// approaching the stop-loss band (between -20 and -10) or a take-profit band
// (between 25 and 30), or when it has never been priced at all.
func Classify(pos domain.Position) Priority {
	pct, ok := pos.LastPct()
	if !ok {
		return PriorityHigh
	}
	if pct > -20 && pct < -10 {
		return PriorityHigh
	}
	if pct > 25 && pct < 30 {
		return PriorityHigh
	}
	return PriorityRegular
}
