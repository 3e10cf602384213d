package snapshot

import (
	"context"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"github.com/vadiminshakov/liqmon/internal/services/feed"
)

// PriceReader is the slice of the feed aggregator the generator needs.
type PriceReader interface {
	GetPrice(symbol string) (domain.AssetPrice, bool)
}

// SyntheticSource fabricates borrower positions in absence of a real
// indexer. Position sizes are fixed at generation time against the
// then-current prices so that health factors straddle 1.0; later price
// moves push individual borrowers across the boundary naturally.
// Seeded rng keeps runs reproducible.
type SyntheticSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	prices    PriceReader
	count     int
	borrowers []domain.Borrower
}

const (
	syntheticDebtSymbol = "USDC"
	minTargetHF         = 0.80
	maxTargetHF         = 1.30
)

var collateralSymbols = []string{"ETH", "BTC"}

// NewSyntheticSource creates a generator for count borrowers. A zero
// seed derives one from the clock.
func NewSyntheticSource(prices PriceReader, count int, seed int64) *SyntheticSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SyntheticSource{
		rng:    rand.New(rand.NewSource(seed)),
		prices: prices,
		count:  count,
	}
}

// Snapshot returns the borrower set, generating it on first call.
// Returned slices are copies; callers may mutate them freely.
func (s *SyntheticSource) Snapshot(ctx context.Context) ([]domain.Borrower, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.borrowers == nil {
		generated, err := s.generate()
		if err != nil {
			return nil, err
		}
		s.borrowers = generated
	}

	now := time.Now()
	out := make([]domain.Borrower, len(s.borrowers))
	for i, b := range s.borrowers {
		copied := b
		copied.Collateral = append([]domain.CollateralPosition(nil), b.Collateral...)
		copied.Debt = append([]domain.DebtPosition(nil), b.Debt...)
		copied.LastUpdate = now
		out[i] = copied
	}
	return out, nil
}

func (s *SyntheticSource) generate() ([]domain.Borrower, error) {
	debtPrice := s.priceOrDefault(syntheticDebtSymbol)
	if debtPrice.IsZero() {
		return nil, errors.Errorf("no price or default for debt symbol %s", syntheticDebtSymbol)
	}

	borrowers := make([]domain.Borrower, 0, s.count)
	for i := 0; i < s.count; i++ {
		colSymbol := collateralSymbols[s.rng.Intn(len(collateralSymbols))]
		colPrice := s.priceOrDefault(colSymbol)
		if colPrice.IsZero() {
			return nil, errors.Errorf("no price or default for collateral symbol %s", colSymbol)
		}

		threshold := decimal.NewFromFloat(0.75 + s.rng.Float64()*0.15)
		colAmount := decimal.NewFromFloat(1 + s.rng.Float64()*49).Round(4)
		targetHF := decimal.NewFromFloat(minTargetHF + s.rng.Float64()*(maxTargetHF-minTargetHF))

		collateral, err := domain.NewCollateralPosition(colSymbol, colAmount, threshold)
		if err != nil {
			return nil, err
		}

		// debt sized so the health factor equals targetHF at
		// generation-time prices
		debtValue := collateral.RiskWeightedValueUSD(colPrice).Div(targetHF)
		debtAmount := debtValue.Div(debtPrice).Round(4)
		borrowRate := decimal.NewFromFloat(0.02 + s.rng.Float64()*0.08).Round(4)

		debt, err := domain.NewDebtPosition(syntheticDebtSymbol, debtAmount, borrowRate)
		if err != nil {
			return nil, err
		}

		borrowers = append(borrowers, domain.Borrower{
			Address:    common.BigToAddress(big.NewInt(int64(i) + 1)),
			Collateral: []domain.CollateralPosition{collateral},
			Debt:       []domain.DebtPosition{debt},
		})
	}
	return borrowers, nil
}

// priceOrDefault prefers a live quote and falls back to the explicit
// hardcoded default, never to zero. Returns zero only when the symbol
// has no default either.
func (s *SyntheticSource) priceOrDefault(symbol string) decimal.Decimal {
	if quote, ok := s.prices.GetPrice(symbol); ok {
		return quote.Price
	}
	if fallback, ok := feed.DefaultPrice(symbol); ok {
		return fallback.Price
	}
	return decimal.Zero
}
