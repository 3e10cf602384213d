package scanner

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"github.com/vadiminshakov/liqmon/internal/services/health"
	"github.com/vadiminshakov/liqmon/internal/services/snapshot"
	"go.uber.org/zap"
)

// priceReader is the slice of the feed aggregator the scanner needs.
type priceReader interface {
	PriceValues() map[string]decimal.Decimal
}

// Scanner drives the scan cycle: fetch borrower snapshot, recompute
// health factors against a single price snapshot, rank liquidation
// candidates by estimated profit, publish the full result. Scans are
// not reentrant; a trigger arriving while one is in flight is dropped,
// never queued, so two views of borrower state can't race on output.
type Scanner struct {
	source          snapshot.Source
	prices          priceReader
	closeFactor     decimal.Decimal
	bonusRate       decimal.Decimal
	scanInterval    time.Duration
	snapshotTimeout time.Duration

	inFlight atomic.Bool
	trigger  chan struct{}

	mu            sync.RWMutex
	opportunities []domain.LiquidationOpportunity
	borrowers     []domain.Borrower

	subMu        sync.Mutex
	oppSubs      map[int]func([]domain.LiquidationOpportunity)
	borrowerSubs map[int]func([]domain.Borrower)
	nextSubID    int

	logger *zap.Logger
}

// Config carries the scanner policy knobs. CloseFactor caps how much
// of a borrower's debt one liquidation may repay; BonusRate is the
// liquidator's reward fraction. Both are policy, never derived.
type Config struct {
	CloseFactor     decimal.Decimal
	BonusRate       decimal.Decimal
	ScanInterval    time.Duration
	SnapshotTimeout time.Duration
}

// New wires a scanner over a snapshot source and a price reader.
func New(source snapshot.Source, prices priceReader, conf Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		source:          source,
		prices:          prices,
		closeFactor:     conf.CloseFactor,
		bonusRate:       conf.BonusRate,
		scanInterval:    conf.ScanInterval,
		snapshotTimeout: conf.SnapshotTimeout,
		trigger:         make(chan struct{}, 1),
		oppSubs:         make(map[int]func([]domain.LiquidationOpportunity)),
		borrowerSubs:    make(map[int]func([]domain.Borrower)),
		logger:          logger.With(zap.String("component", "scanner")),
	}
}

// Run executes scan cycles on the timer and on demand until ctx is
// done. Cycle failures are logged and retried on the next tick; the
// loop survives indefinitely.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	s.logger.Info("starting scan loop", zap.Duration("interval", s.scanInterval))

	// first cycle immediately rather than one interval in
	if err := s.Scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scan cycle failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scan loop stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		}

		if err := s.Scan(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scan loop stopped")
				return ctx.Err()
			}
			s.logger.Error("scan cycle failed", zap.Error(err))
		}
	}
}

// TriggerScan requests an on-demand cycle. Non-blocking; when a scan
// is already in flight or pending the request is coalesced.
func (s *Scanner) TriggerScan() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Scan runs one cycle. Publishing is all-or-nothing: an aborted or
// cancelled cycle leaves the previously published lists untouched.
func (s *Scanner) Scan(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("scan already in flight, trigger coalesced")
		return nil
	}
	defer s.inFlight.Store(false)

	snapCtx, cancel := context.WithTimeout(ctx, s.snapshotTimeout)
	defer cancel()

	borrowers, err := s.source.Snapshot(snapCtx)
	if err != nil {
		return errors.Wrap(domain.ErrSnapshotFetchFailed, err.Error())
	}

	// one consistent price snapshot for the whole cycle
	prices := s.prices.PriceValues()
	now := time.Now()

	evaluated := make([]domain.Borrower, 0, len(borrowers))
	liquidatable := make([]domain.Borrower, 0)
	for _, b := range borrowers {
		hf, err := health.Calculate(b.Collateral, b.Debt, prices)
		if err != nil {
			var missing *domain.MissingPriceError
			if errors.As(err, &missing) {
				s.logger.Debug("borrower indeterminate this cycle",
					zap.String("address", b.Address.Hex()),
					zap.String("symbol", missing.Symbol))
				b.HealthFactor = decimal.Zero
				b.Status = domain.HealthStatusIndeterminate
				b.LastUpdate = now
				evaluated = append(evaluated, b)
				continue
			}
			return errors.Wrap(err, "health factor computation")
		}

		b.HealthFactor = hf
		b.Status = domain.StatusForHealthFactor(hf)
		b.LastUpdate = now
		evaluated = append(evaluated, b)
		if b.Status == domain.HealthStatusLiquidatable {
			liquidatable = append(liquidatable, b)
		}
	}

	opportunities := s.buildOpportunities(liquidatable, prices, now)

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].EstimatedProfitUSD.GreaterThan(opportunities[j].EstimatedProfitUSD)
	})

	// a cancelled cycle must never publish partial results
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.publish(evaluated, opportunities)

	s.logger.Info("scan cycle complete",
		zap.Int("borrowers", len(evaluated)),
		zap.Int("liquidatable", len(liquidatable)),
		zap.Int("opportunities", len(opportunities)))
	return nil
}

func (s *Scanner) buildOpportunities(liquidatable []domain.Borrower, prices map[string]decimal.Decimal, now time.Time) []domain.LiquidationOpportunity {
	opportunities := make([]domain.LiquidationOpportunity, 0, len(liquidatable))
	for _, b := range liquidatable {
		for _, col := range b.Collateral {
			colPrice, ok := prices[col.Symbol]
			if !ok {
				continue
			}
			collateralValue := col.ValueUSD(colPrice)
			if !collateralValue.IsPositive() {
				continue
			}
			for _, debt := range b.Debt {
				debtPrice, ok := prices[debt.Symbol]
				if !ok {
					continue
				}
				debtValue := debt.ValueUSD(debtPrice)
				if !debtValue.IsPositive() {
					continue
				}

				maxLiquidation := decimal.Min(debtValue.Mul(s.closeFactor), collateralValue)
				opportunities = append(opportunities, domain.LiquidationOpportunity{
					ID:                     uuid.New().String(),
					BorrowerAddress:        b.Address,
					CollateralSymbol:       col.Symbol,
					DebtSymbol:             debt.Symbol,
					MaxLiquidationValueUSD: maxLiquidation,
					LiquidationBonusRate:   s.bonusRate,
					EstimatedProfitUSD:     maxLiquidation.Mul(s.bonusRate),
					DiscoveredAt:           now,
				})
			}
		}
	}
	return opportunities
}

// publish atomically replaces both lists and notifies subscribers with
// their own copies.
func (s *Scanner) publish(borrowers []domain.Borrower, opportunities []domain.LiquidationOpportunity) {
	s.mu.Lock()
	s.borrowers = borrowers
	s.opportunities = opportunities
	s.mu.Unlock()

	s.subMu.Lock()
	oppSubs := make([]func([]domain.LiquidationOpportunity), 0, len(s.oppSubs))
	for _, fn := range s.oppSubs {
		oppSubs = append(oppSubs, fn)
	}
	borrowerSubs := make([]func([]domain.Borrower), 0, len(s.borrowerSubs))
	for _, fn := range s.borrowerSubs {
		borrowerSubs = append(borrowerSubs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range oppSubs {
		fn(append([]domain.LiquidationOpportunity(nil), opportunities...))
	}
	for _, fn := range borrowerSubs {
		fn(append([]domain.Borrower(nil), borrowers...))
	}
}

// Opportunities returns a copy of the latest published opportunity
// list, sorted by estimated profit descending. Callers may rely on
// the ordering.
func (s *Scanner) Opportunities() []domain.LiquidationOpportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LiquidationOpportunity(nil), s.opportunities...)
}

// Opportunity looks up a live opportunity by id.
func (s *Scanner) Opportunity(id string) (domain.LiquidationOpportunity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, opp := range s.opportunities {
		if opp.ID == id {
			return opp, true
		}
	}
	return domain.LiquidationOpportunity{}, false
}

// Borrowers returns a copy of the latest evaluated borrower list.
func (s *Scanner) Borrowers() []domain.Borrower {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Borrower(nil), s.borrowers...)
}

// SubscribeOpportunities pushes the full opportunity list on every
// completed cycle. Returns an unsubscribe handle.
func (s *Scanner) SubscribeOpportunities(fn func([]domain.LiquidationOpportunity)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.oppSubs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.oppSubs, id)
	}
}

// SubscribeBorrowers pushes the full borrower list with current health
// factors on every completed cycle.
func (s *Scanner) SubscribeBorrowers(fn func([]domain.Borrower)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.borrowerSubs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.borrowerSubs, id)
	}
}
