package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PriceSource tells where a quote came from.
type PriceSource string

const (
	// PriceSourceStream marks a quote pushed by the streaming channel.
	PriceSourceStream PriceSource = "STREAM"
	// PriceSourcePoll marks a quote fetched by the polling fallback.
	PriceSourcePoll PriceSource = "POLL"
	// PriceSourceFallbackDefault marks a hardcoded default used when no
	// live quote has ever been observed for a symbol.
	PriceSourceFallbackDefault PriceSource = "FALLBACK_DEFAULT"
)

// AssetPrice is the latest known quote for a single symbol.
type AssetPrice struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
	Source     PriceSource     `json:"source"`
}

// NewAssetPrice validates and constructs a quote.
func NewAssetPrice(symbol string, price decimal.Decimal, observedAt time.Time, source PriceSource) (AssetPrice, error) {
	if symbol == "" {
		return AssetPrice{}, errors.New("asset price symbol is required")
	}
	if price.IsNegative() {
		return AssetPrice{}, errors.Errorf("negative price %s for %s", price.String(), symbol)
	}
	return AssetPrice{
		Symbol:     symbol,
		Price:      price,
		ObservedAt: observedAt,
		Source:     source,
	}, nil
}

// IsLive reports whether the quote came from an upstream feed rather
// than a hardcoded default.
func (p AssetPrice) IsLive() bool {
	return p.Source != PriceSourceFallbackDefault
}

// NewerThan compares quotes by observation time. Used for
// last-write-wins merging when stream and poll race during reconnect.
func (p AssetPrice) NewerThan(other AssetPrice) bool {
	return p.ObservedAt.After(other.ObservedAt)
}
