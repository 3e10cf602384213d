package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// CollateralPosition is a single collateral asset held by a borrower.
// USD value is always derived from a current price, never stored.
type CollateralPosition struct {
	Symbol               string          `json:"symbol"`
	Amount               decimal.Decimal `json:"amount"`
	LiquidationThreshold decimal.Decimal `json:"liquidation_threshold"`
}

// NewCollateralPosition validates and constructs a collateral position.
func NewCollateralPosition(symbol string, amount, liquidationThreshold decimal.Decimal) (CollateralPosition, error) {
	if symbol == "" {
		return CollateralPosition{}, errors.New("collateral symbol is required")
	}
	if amount.IsNegative() {
		return CollateralPosition{}, errors.Errorf("collateral amount must not be negative, got %s", amount.String())
	}
	if !liquidationThreshold.IsPositive() || liquidationThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return CollateralPosition{}, errors.Errorf("liquidation threshold must be in (0,1], got %s", liquidationThreshold.String())
	}
	return CollateralPosition{
		Symbol:               symbol,
		Amount:               amount,
		LiquidationThreshold: liquidationThreshold,
	}, nil
}

// ValueUSD is the face value of the position at the given price.
func (c CollateralPosition) ValueUSD(price decimal.Decimal) decimal.Decimal {
	return c.Amount.Mul(price)
}

// RiskWeightedValueUSD discounts the face value by the liquidation
// threshold. The health factor numerator sums these.
func (c CollateralPosition) RiskWeightedValueUSD(price decimal.Decimal) decimal.Decimal {
	return c.Amount.Mul(price).Mul(c.LiquidationThreshold)
}

// DebtPosition is a single borrowed asset owed by a borrower.
type DebtPosition struct {
	Symbol     string          `json:"symbol"`
	Amount     decimal.Decimal `json:"amount"`
	BorrowRate decimal.Decimal `json:"borrow_rate"`
}

// NewDebtPosition validates and constructs a debt position.
func NewDebtPosition(symbol string, amount, borrowRate decimal.Decimal) (DebtPosition, error) {
	if symbol == "" {
		return DebtPosition{}, errors.New("debt symbol is required")
	}
	if amount.IsNegative() {
		return DebtPosition{}, errors.Errorf("debt amount must not be negative, got %s", amount.String())
	}
	if borrowRate.IsNegative() {
		return DebtPosition{}, errors.Errorf("borrow rate must not be negative, got %s", borrowRate.String())
	}
	return DebtPosition{
		Symbol:     symbol,
		Amount:     amount,
		BorrowRate: borrowRate,
	}, nil
}

// ValueUSD is the outstanding value of the debt at the given price.
func (d DebtPosition) ValueUSD(price decimal.Decimal) decimal.Decimal {
	return d.Amount.Mul(price)
}
