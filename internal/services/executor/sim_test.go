package executor

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSimBackend_AlwaysSucceeds(t *testing.T) {
	b := NewSimBackend(0, 0, 1, zap.NewNop())

	seen := make(map[common.Hash]struct{})
	for i := 0; i < 10; i++ {
		hash, err := b.Liquidate(context.Background(), testOpportunity(1))
		require.NoError(t, err)
		require.NotEqual(t, common.Hash{}, hash)
		seen[hash] = struct{}{}
	}
	assert.Len(t, seen, 10, "every submission gets its own transaction hash")
}

func TestSimBackend_AlwaysFails(t *testing.T) {
	b := NewSimBackend(1, 0, 1, zap.NewNop())

	_, err := b.Liquidate(context.Background(), testOpportunity(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient liquidity")
}

func TestSimBackend_LatencyRespectsContext(t *testing.T) {
	b := NewSimBackend(0, time.Minute, 1, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Liquidate(ctx, testOpportunity(1))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
