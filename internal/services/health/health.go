// Package health computes borrower health factors. Pure computation:
// no I/O, no state, no logging.
package health

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/liqmon/internal/domain"
)

// Calculate returns the health factor for one borrower:
// risk-weighted collateral value divided by total debt value.
//
// Zero total debt value returns domain.HealthFactorInfinite (the
// borrower can never be liquidated; decimal has no +Inf). A referenced
// symbol without a price fails loudly with *domain.MissingPriceError:
// silently substituting zero or one would corrupt the result in either
// direction.
func Calculate(collateral []domain.CollateralPosition, debt []domain.DebtPosition, prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	weightedCollateral := decimal.Zero
	for _, c := range collateral {
		if c.Amount.IsZero() {
			continue
		}
		price, ok := prices[c.Symbol]
		if !ok {
			return decimal.Zero, &domain.MissingPriceError{Symbol: c.Symbol}
		}
		weightedCollateral = weightedCollateral.Add(c.RiskWeightedValueUSD(price))
	}

	totalDebt := decimal.Zero
	for _, d := range debt {
		if d.Amount.IsZero() {
			continue
		}
		price, ok := prices[d.Symbol]
		if !ok {
			return decimal.Zero, &domain.MissingPriceError{Symbol: d.Symbol}
		}
		totalDebt = totalDebt.Add(d.ValueUSD(price))
	}

	if totalDebt.IsZero() {
		return domain.HealthFactorInfinite, nil
	}

	return weightedCollateral.Div(totalDebt), nil
}
