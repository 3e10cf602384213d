package feed

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
)

// HyperliquidPoller answers fallback price queries from the
// Hyperliquid public Info API. Mids are keyed by base coin, which
// matches the monitor's symbol naming directly.
type HyperliquidPoller struct {
	info *hyperliquid.Info
}

func NewHyperliquidPoller(info *hyperliquid.Info) *HyperliquidPoller {
	return &HyperliquidPoller{info: info}
}

func (p *HyperliquidPoller) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if p.info == nil {
		return nil, errors.New("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "hyperliquid all mids")
	}

	result := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		mid, ok := mids[symbol]
		if !ok || mid == "" {
			continue
		}
		price, err := decimal.NewFromString(mid)
		if err != nil {
			return nil, errors.Wrapf(err, "parse hyperliquid mid for %s", symbol)
		}
		result[symbol] = price
	}

	if len(result) == 0 {
		return nil, errors.New("hyperliquid API returned no mids for tracked symbols")
	}
	return result, nil
}
