package trader

import (
	"errors"
	"fmt"
)

var (
	// ErrPriceUnavailable is returned when no provider produced a market price.
	ErrPriceUnavailable = errors.New("no market price available")
	// ErrInsufficientBalance means the simulated ledger cannot cover an order.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrMissingCredentials means live mode is selected without an API key pair.
	ErrMissingCredentials = errors.New("live trading requires API credentials")
	// ErrUnauthorized is returned when a user acts on another user's pending buy.
	ErrUnauthorized = errors.New("pending buy belongs to another user")
	// ErrPendingBuyResolved is returned for a pending buy that was already confirmed or rejected.
	ErrPendingBuyResolved = errors.New("pending buy already resolved")
	// ErrInvalidSettings is returned for settings updates that cannot be applied.
	ErrInvalidSettings = errors.New("invalid settings")
)

// PriceDriftError is returned when the market moved too far from the price a
// pending buy was proposed at. The pending buy stays outstanding.
type PriceDriftError struct {
	Proposed float64
	Current  float64
	Percent  float64
}

func (e *PriceDriftError) Error() string {
	direction := "increased"
	if e.Percent < 0 {
		direction = "decreased"
	}
	pct := e.Percent
	if pct < 0 {
		pct = -pct
	}
	return fmt.Sprintf("price has %s by %.2f%% from %.2f to %.2f", direction, pct, e.Proposed, e.Current)
}
