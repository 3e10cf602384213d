package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// HealthFactorInfinite is the sentinel for a borrower with zero total
// debt value. decimal.Decimal has no representation for +Inf, so a
// designated large constant stands in; no real position comes close.
var HealthFactorInfinite = decimal.NewFromInt(1_000_000_000)

// HealthStatus classifies a borrower after a scan cycle.
type HealthStatus string

const (
	// HealthStatusHealthy means health factor >= 1.
	HealthStatusHealthy HealthStatus = "HEALTHY"
	// HealthStatusLiquidatable means health factor < 1.
	HealthStatusLiquidatable HealthStatus = "LIQUIDATABLE"
	// HealthStatusIndeterminate means the health factor could not be
	// computed this cycle (a referenced symbol had no known price).
	HealthStatusIndeterminate HealthStatus = "INDETERMINATE"
)

// Borrower is one account with collateral and debt positions. The
// health factor is derived and rewritten every scan cycle.
type Borrower struct {
	Address      common.Address       `json:"address"`
	Collateral   []CollateralPosition `json:"collateral"`
	Debt         []DebtPosition       `json:"debt"`
	HealthFactor decimal.Decimal      `json:"health_factor"`
	Status       HealthStatus         `json:"status"`
	LastUpdate   time.Time            `json:"last_update"`
}

// TotalDebtValueUSD sums debt values at the given prices. Symbols with
// no price entry contribute zero here; callers that need loud failure
// use the health calculator instead.
func (b Borrower) TotalDebtValueUSD(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range b.Debt {
		if price, ok := prices[d.Symbol]; ok {
			total = total.Add(d.ValueUSD(price))
		}
	}
	return total
}

// StatusForHealthFactor maps a computed health factor to a status.
func StatusForHealthFactor(hf decimal.Decimal) HealthStatus {
	if hf.LessThan(decimal.NewFromInt(1)) {
		return HealthStatusLiquidatable
	}
	return HealthStatusHealthy
}
