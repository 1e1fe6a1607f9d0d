package ports

import (
	"context"
	"time"
)

// Quote sizes the two legs of a swap. It is consumed as-is from the external
// quote source; the orchestrator only re-checks ExpiresAt before committing.
type Quote struct {
	FromAsset       string
	ToAsset         string
	Amount          string
	Rate            float64
	EstimatedOutput string
	ExpiresAt       time.Time
}

// QuoteService wraps the external exchange-rate API.
type QuoteService interface {
	GetQuote(ctx context.Context, fromAsset, toAsset, amount string) (*Quote, error)
}
