package htlc

import (
	"fmt"
	"time"
)

// MinSafetyMargin is the smallest allowed gap between the responder and
// initiator timelocks. The initiator must always be able to redeem the
// responder leg and settle its own leg before the initiator timelock fires.
const MinSafetyMargin = time.Hour

// ErrInvalidTimelockOrdering is returned when the requested windows would
// leave the initiator without enough time to settle both legs.
var ErrInvalidTimelockOrdering = fmt.Errorf("initiator timelock must exceed responder timelock by at least %s", MinSafetyMargin)

// Timelocks holds the absolute expiries of the two legs. The responder leg
// (funded second) always expires strictly before the initiator leg.
type Timelocks struct {
	Initiator time.Time
	Responder time.Time
}

// ComputeTimelocks derives both expiries from the current time. The responder
// leg expires after responderWindow, the initiator leg safetyMargin later.
func ComputeTimelocks(now time.Time, responderWindow, safetyMargin time.Duration) (Timelocks, error) {
	if responderWindow <= 0 {
		return Timelocks{}, fmt.Errorf("responder window must be positive, got %s", responderWindow)
	}
	if safetyMargin < MinSafetyMargin {
		return Timelocks{}, ErrInvalidTimelockOrdering
	}

	responder := now.Add(responderWindow).Truncate(time.Second)
	initiator := responder.Add(safetyMargin)

	tl := Timelocks{Initiator: initiator, Responder: responder}
	if err := tl.Validate(); err != nil {
		return Timelocks{}, err
	}
	return tl, nil
}

// Validate re-checks the ordering invariant on an already-built pair, for
// sessions reconstructed from storage or from a counterparty's parameters.
func (t Timelocks) Validate() error {
	if t.Initiator.Before(t.Responder.Add(MinSafetyMargin)) {
		return ErrInvalidTimelockOrdering
	}
	return nil
}
