package executions

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"go.uber.org/zap"
)

func record(id string, borrower int64, status domain.ExecutionStatus) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		ID: id,
		Opportunity: domain.LiquidationOpportunity{
			ID:                 "opp-" + id,
			BorrowerAddress:    common.BigToAddress(big.NewInt(borrower)),
			CollateralSymbol:   "ETH",
			DebtSymbol:         "USDC",
			EstimatedProfitUSD: decimal.NewFromInt(300),
		},
		Status:    status,
		StartedAt: time.Now(),
	}
}

func TestHistory_RecordsNewestFirst(t *testing.T) {
	h := NewHistory(nil, zap.NewNop())

	h.Append(record("a", 1, domain.ExecutionStatusPending))
	h.Append(record("b", 2, domain.ExecutionStatusPending))
	h.Append(record("c", 3, domain.ExecutionStatusPending))

	records := h.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, "a", records[2].ID)
}

func TestHistory_UpdateFinalizesInPlace(t *testing.T) {
	h := NewHistory(nil, zap.NewNop())

	h.Append(record("a", 1, domain.ExecutionStatusPending))
	h.Append(record("b", 2, domain.ExecutionStatusPending))

	final := record("a", 1, domain.ExecutionStatusSucceeded)
	final.TxHash = common.BytesToHash([]byte("tx"))
	final.CompletedAt = time.Now()
	h.Update(final)

	records := h.Records()
	require.Len(t, records, 2, "update must not grow the list")
	assert.Equal(t, "b", records[0].ID, "ordering is by append time, not update time")
	assert.Equal(t, domain.ExecutionStatusSucceeded, records[1].Status)
	assert.Equal(t, final.TxHash, records[1].TxHash)
}

func TestHistory_UpdateUnknownIDAppends(t *testing.T) {
	h := NewHistory(nil, zap.NewNop())

	h.Update(record("orphan", 1, domain.ExecutionStatusFailed))

	records := h.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "orphan", records[0].ID)
}

func TestHistory_RecordsReturnsCopy(t *testing.T) {
	h := NewHistory(nil, zap.NewNop())
	h.Append(record("a", 1, domain.ExecutionStatusPending))

	records := h.Records()
	records[0].Status = domain.ExecutionStatusFailed

	assert.Equal(t, domain.ExecutionStatusPending, h.Records()[0].Status)
}

func TestJournal_EveryTransitionIsAnEntry(t *testing.T) {
	dir := t.TempDir()

	journal, err := NewJournal(dir)
	require.NoError(t, err)

	h := NewHistory(journal, zap.NewNop())
	h.Append(record("a", 1, domain.ExecutionStatusPending))
	final := record("a", 1, domain.ExecutionStatusSucceeded)
	h.Update(final)

	require.NoError(t, journal.Close())

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "execution_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	require.NoError(t, err)
	defer wal.Close()

	statuses := make(map[string]domain.ExecutionRecord)
	for m := range wal.Iterator() {
		var rec domain.ExecutionRecord
		require.NoError(t, json.Unmarshal(m.Value, &rec))
		statuses[m.Key] = rec
	}

	require.Len(t, statuses, 2, "pending and final states are separate audit entries")
	assert.Contains(t, statuses, "execution_a_PENDING")
	assert.Contains(t, statuses, "execution_a_SUCCEEDED")
	assert.Equal(t, domain.ExecutionStatusSucceeded, statuses["execution_a_SUCCEEDED"].Status)
}

func TestJournal_RequiresDir(t *testing.T) {
	_, err := NewJournal("")
	require.Error(t, err)
}

func TestJournal_RejectsEmptyRecordID(t *testing.T) {
	journal, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	defer journal.Close()

	err = journal.Record(domain.ExecutionRecord{})
	require.Error(t, err)
}
