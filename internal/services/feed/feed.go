package feed

import (
	"context"

	"github.com/shopspring/decimal"
)

// StreamSource is a persistent push subscription to the upstream price
// channel. Run blocks until ctx is done, reconnecting internally, and
// delivers partial {symbol: price} updates through onUpdate. onState
// reports connection health so the aggregator can arm its fallback.
type StreamSource interface {
	Run(ctx context.Context, symbols []string, onUpdate func(map[string]decimal.Decimal), onState func(connected bool)) error
}

// PollSource is the request/response fallback price endpoint.
type PollSource interface {
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}
