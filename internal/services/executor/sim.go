package executor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"go.uber.org/zap"
)

// SimBackend fakes the execution collaborator for demo runs: a short
// artificial latency, a configurable failure fraction, and a fabricated
// transaction hash.
type SimBackend struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
	latency     time.Duration
	logger      *zap.Logger
}

// NewSimBackend creates a simulated backend. failureRate is the
// fraction of calls that fail, in [0,1]. A zero seed derives one from
// the clock.
func NewSimBackend(failureRate float64, latency time.Duration, seed int64, logger *zap.Logger) *SimBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimBackend{
		rng:         rand.New(rand.NewSource(seed)),
		failureRate: failureRate,
		latency:     latency,
		logger:      logger.With(zap.String("component", "sim_backend")),
	}
}

// Liquidate pretends to submit the liquidation.
func (b *SimBackend) Liquidate(ctx context.Context, opp domain.LiquidationOpportunity) (common.Hash, error) {
	if b.latency > 0 {
		timer := time.NewTimer(b.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return common.Hash{}, ctx.Err()
		case <-timer.C:
		}
	}

	b.mu.Lock()
	failed := b.rng.Float64() < b.failureRate
	var raw [common.HashLength]byte
	b.rng.Read(raw[:])
	b.mu.Unlock()

	if failed {
		return common.Hash{}, errors.Errorf("backend rejected liquidation of %s: insufficient liquidity", opp.BorrowerAddress.Hex())
	}

	txHash := common.BytesToHash(raw[:])
	b.logger.Debug("simulated liquidation submitted",
		zap.String("borrower", opp.BorrowerAddress.Hex()),
		zap.String("tx", txHash.Hex()))
	return txHash, nil
}
