package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrPositionClosed      = errors.New("position already closed")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrInsufficientBalance = errors.New("insufficient on-chain balance")
	ErrSwapFailed          = errors.New("swap execution failed")
	ErrStaleTransaction    = errors.New("stale or expired transaction")
	ErrLockHeld            = errors.New("lock already held")
	ErrInvalidKey          = errors.New("invalid private key")
)
