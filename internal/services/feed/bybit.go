package feed

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const bybitQuoteAsset = "USDT"

// BybitPoller answers fallback price queries from the Bybit V5 spot
// ticker endpoint.
type BybitPoller struct {
	client *bybit.Client
}

func NewBybitPoller(client *bybit.Client) *BybitPoller {
	return &BybitPoller{client: client}
}

func (p *BybitPoller) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		if symbol == bybitQuoteAsset {
			result[symbol] = decimal.NewFromInt(1)
			continue
		}

		pair := bybit.SymbolV5(symbol + bybitQuoteAsset)
		tickers, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   &pair,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "bybit tickers for %s", symbol)
		}
		if len(tickers.Result.Spot.List) == 0 {
			continue
		}

		price, err := decimal.NewFromString(tickers.Result.Spot.List[0].LastPrice)
		if err != nil {
			return nil, errors.Wrapf(err, "parse bybit price for %s", symbol)
		}
		result[symbol] = price
	}

	if len(result) == 0 {
		return nil, errors.New("bybit API returned no prices for tracked symbols")
	}
	return result, nil
}
