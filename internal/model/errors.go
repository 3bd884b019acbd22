package model

import "errors"

// Sentinel errors form the failure taxonomy of the trading core. Callers
// classify with errors.Is and wrap with component context.
var (
	// ErrDataUnavailable means no bars or no tick: market closed or feed
	// gap. Callers skip the pass without a state change.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrSizingUnavailable means symbol metadata is missing or the
	// computed per-lot value is non-positive; the signal must not arm.
	ErrSizingUnavailable = errors.New("position sizing unavailable")

	// ErrOrderRejected means the terminal refused an order or a
	// modification. The session stays ARMED and the pass retries.
	ErrOrderRejected = errors.New("order rejected")

	// ErrInvalidTransition guards the state machine against calls made
	// outside their precondition state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
)
