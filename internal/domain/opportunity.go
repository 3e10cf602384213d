package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LiquidationOpportunity is a candidate liquidation discovered by one
// scan cycle. Opportunities are created fresh every cycle and never
// mutated; the borrower is referenced by address only, since the
// underlying position may change or disappear between cycles.
type LiquidationOpportunity struct {
	ID                     string          `json:"id"`
	BorrowerAddress        common.Address  `json:"borrower_address"`
	CollateralSymbol       string          `json:"collateral_symbol"`
	DebtSymbol             string          `json:"debt_symbol"`
	MaxLiquidationValueUSD decimal.Decimal `json:"max_liquidation_value_usd"`
	LiquidationBonusRate   decimal.Decimal `json:"liquidation_bonus_rate"`
	EstimatedProfitUSD     decimal.Decimal `json:"estimated_profit_usd"`
	DiscoveredAt           time.Time       `json:"discovered_at"`
}
