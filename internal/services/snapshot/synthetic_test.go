package snapshot

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"github.com/vadiminshakov/liqmon/internal/services/health"
)

type stubPrices struct {
	prices map[string]decimal.Decimal
}

func (s stubPrices) GetPrice(symbol string) (domain.AssetPrice, bool) {
	p, ok := s.prices[symbol]
	if !ok {
		return domain.AssetPrice{}, false
	}
	return domain.AssetPrice{Symbol: symbol, Price: p}, true
}

var generationPrices = stubPrices{prices: map[string]decimal.Decimal{
	"ETH":  decimal.NewFromInt(3000),
	"BTC":  decimal.NewFromInt(60000),
	"USDC": decimal.NewFromInt(1),
}}

func TestSnapshot_Deterministic(t *testing.T) {
	a := NewSyntheticSource(generationPrices, 10, 42)
	b := NewSyntheticSource(generationPrices, 10, 42)

	first, err := a.Snapshot(context.Background())
	require.NoError(t, err)
	second, err := b.Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, first, 10)
	require.Len(t, second, 10)
	for i := range first {
		assert.Equal(t, first[i].Address, second[i].Address)
		assert.Equal(t, first[i].Collateral, second[i].Collateral)
		assert.Equal(t, first[i].Debt, second[i].Debt)
	}
}

func TestSnapshot_HealthFactorsStraddleOne(t *testing.T) {
	source := NewSyntheticSource(generationPrices, 50, 7)

	borrowers, err := source.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, borrowers, 50)

	var below, above int
	for _, b := range borrowers {
		hf, err := health.Calculate(b.Collateral, b.Debt, generationPrices.prices)
		require.NoError(t, err)
		// target band is 0.80..1.30 at generation prices, with
		// rounding slop on position sizes
		assert.True(t, hf.GreaterThan(decimal.NewFromFloat(0.75)), "hf %s too low", hf)
		assert.True(t, hf.LessThan(decimal.NewFromFloat(1.35)), "hf %s too high", hf)
		if hf.LessThan(decimal.NewFromInt(1)) {
			below++
		} else {
			above++
		}
	}
	assert.NotZero(t, below, "generated book must contain liquidatable borrowers")
	assert.NotZero(t, above, "generated book must contain healthy borrowers")
}

func TestSnapshot_StableAcrossCalls(t *testing.T) {
	source := NewSyntheticSource(generationPrices, 5, 1)

	first, err := source.Snapshot(context.Background())
	require.NoError(t, err)
	second, err := source.Snapshot(context.Background())
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].Address, second[i].Address)
		assert.Equal(t, first[i].Collateral, second[i].Collateral)
		assert.Equal(t, first[i].Debt, second[i].Debt)
	}
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	source := NewSyntheticSource(generationPrices, 3, 1)

	first, err := source.Snapshot(context.Background())
	require.NoError(t, err)
	first[0].Collateral[0].Amount = decimal.Zero

	second, err := source.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, second[0].Collateral[0].Amount.IsZero(), "caller mutation must not leak into the source")
}

func TestSnapshot_DefaultPricesWhenFeedEmpty(t *testing.T) {
	source := NewSyntheticSource(stubPrices{}, 5, 1)

	borrowers, err := source.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, borrowers, 5)
}

func TestSnapshot_CancelledContext(t *testing.T) {
	source := NewSyntheticSource(generationPrices, 5, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.Snapshot(ctx)
	require.Error(t, err)
}
