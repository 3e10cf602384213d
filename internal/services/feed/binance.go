package feed

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const binanceQuoteAsset = "USDT"

// BinancePoller answers fallback price queries from the Binance public
// ticker API, quoting every tracked symbol against USDT.
type BinancePoller struct {
	client *binance.Client
}

// NewBinancePoller creates a poller over the public API; no
// authentication required.
func NewBinancePoller(client *binance.Client) *BinancePoller {
	return &BinancePoller{client: client}
}

// Prices fetches the full ticker list once and picks the tracked
// symbols out of it.
func (p *BinancePoller) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	tickers, err := p.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "binance list prices")
	}

	byPair := make(map[string]string, len(tickers))
	for _, t := range tickers {
		byPair[t.Symbol] = t.Price
	}

	result := make(map[string]decimal.Decimal, len(symbols))
	for _, symbol := range symbols {
		if symbol == binanceQuoteAsset {
			result[symbol] = decimal.NewFromInt(1)
			continue
		}
		raw, ok := byPair[symbol+binanceQuoteAsset]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parse binance price for %s", symbol)
		}
		result[symbol] = price
	}

	if len(result) == 0 {
		return nil, errors.New("binance API returned no prices for tracked symbols")
	}
	return result, nil
}
