// Package executions owns the execution history: an explicit
// append-only object injected where needed, no ambient global.
package executions

import (
	"sync"

	"github.com/vadiminshakov/liqmon/internal/domain"
	"go.uber.org/zap"
)

// History holds execution records in memory for the process lifetime.
// The executor adapter is the sole writer. An optional journal mirrors
// every state transition for audit; journal failures are logged and
// never fail the execution path.
type History struct {
	mu      sync.RWMutex
	records []domain.ExecutionRecord
	index   map[string]int
	journal *Journal
	logger  *zap.Logger
}

// NewHistory creates a history store. journal may be nil.
func NewHistory(journal *Journal, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		index:   make(map[string]int),
		journal: journal,
		logger:  logger.With(zap.String("component", "execution_history")),
	}
}

// Append stores a fresh record.
func (h *History) Append(record domain.ExecutionRecord) {
	h.mu.Lock()
	h.index[record.ID] = len(h.records)
	h.records = append(h.records, record)
	h.mu.Unlock()

	h.journalWrite(record)
}

// Update replaces the stored record with the same ID, finalizing its
// status. Unknown IDs are appended; an update must never be lost.
func (h *History) Update(record domain.ExecutionRecord) {
	h.mu.Lock()
	if pos, ok := h.index[record.ID]; ok {
		h.records[pos] = record
	} else {
		h.index[record.ID] = len(h.records)
		h.records = append(h.records, record)
	}
	h.mu.Unlock()

	h.journalWrite(record)
}

// Records returns a copy of all records, newest first.
func (h *History) Records() []domain.ExecutionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.ExecutionRecord, len(h.records))
	for i, record := range h.records {
		out[len(h.records)-1-i] = record
	}
	return out
}

func (h *History) journalWrite(record domain.ExecutionRecord) {
	if h.journal == nil {
		return
	}
	if err := h.journal.Record(record); err != nil {
		h.logger.Warn("failed to journal execution record",
			zap.String("id", record.ID), zap.Error(err))
	}
}
