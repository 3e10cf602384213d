package executor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"github.com/vadiminshakov/liqmon/internal/storage/executions"
	"go.uber.org/zap"
)

// Backend is the external execution collaborator. It returns an opaque
// transaction reference for audit on success.
type Backend interface {
	Liquidate(ctx context.Context, opp domain.LiquidationOpportunity) (common.Hash, error)
}

// Executor hands selected opportunities to the execution backend and
// records the outcome. At most one execution per borrower address may
// be in flight. A failed execution is never retried automatically;
// retrying a financial action is a human or higher-level policy call.
type Executor struct {
	backend    Backend
	history    *executions.History
	revalidate func(ctx context.Context, opp domain.LiquidationOpportunity) error

	mu       sync.Mutex
	inFlight map[common.Address]struct{}

	logger *zap.Logger
}

// Option configures the executor.
type Option func(*Executor)

// WithRevalidation installs a pre-commit check run right before the
// backend call. Off by default: the base contract executes against
// the opportunity as discovered, stale or not.
func WithRevalidation(fn func(ctx context.Context, opp domain.LiquidationOpportunity) error) Option {
	return func(e *Executor) {
		e.revalidate = fn
	}
}

// New creates an executor writing outcomes into history.
func New(backend Backend, history *executions.History, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		backend:  backend,
		history:  history,
		inFlight: make(map[common.Address]struct{}),
		logger:   logger.With(zap.String("component", "executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one liquidation attempt synchronously. A second request
// for the same borrower while one is pending is rejected immediately
// with *domain.DuplicateExecutionError, never queued or dropped
// silently.
func (e *Executor) Execute(ctx context.Context, opp domain.LiquidationOpportunity) (domain.ExecutionRecord, error) {
	e.mu.Lock()
	if _, busy := e.inFlight[opp.BorrowerAddress]; busy {
		e.mu.Unlock()
		// expected contention, not an operational error
		e.logger.Debug("duplicate execution rejected",
			zap.String("borrower", opp.BorrowerAddress.Hex()))
		return domain.ExecutionRecord{}, &domain.DuplicateExecutionError{Address: opp.BorrowerAddress}
	}
	e.inFlight[opp.BorrowerAddress] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inFlight, opp.BorrowerAddress)
		e.mu.Unlock()
	}()

	record := domain.ExecutionRecord{
		ID:          uuid.New().String(),
		Opportunity: opp,
		Status:      domain.ExecutionStatusPending,
		StartedAt:   time.Now(),
	}
	e.history.Append(record)

	if e.revalidate != nil {
		if err := e.revalidate(ctx, opp); err != nil {
			return e.fail(record, errors.Wrap(err, "pre-commit revalidation"))
		}
	}

	txHash, err := e.backend.Liquidate(ctx, opp)
	if err != nil {
		return e.fail(record, err)
	}

	record.Status = domain.ExecutionStatusSucceeded
	record.TxHash = txHash
	record.CompletedAt = time.Now()
	e.history.Update(record)

	e.logger.Info("liquidation executed",
		zap.String("borrower", opp.BorrowerAddress.Hex()),
		zap.String("tx", txHash.Hex()),
		zap.String("profit_usd", opp.EstimatedProfitUSD.String()))
	return record, nil
}

func (e *Executor) fail(record domain.ExecutionRecord, cause error) (domain.ExecutionRecord, error) {
	record.Status = domain.ExecutionStatusFailed
	record.FailureReason = cause.Error()
	record.CompletedAt = time.Now()
	e.history.Update(record)

	e.logger.Warn("liquidation failed",
		zap.String("borrower", record.Opportunity.BorrowerAddress.Hex()),
		zap.Error(cause))
	return record, errors.Wrap(cause, "execution failed")
}
