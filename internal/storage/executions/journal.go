package executions

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/liqmon/internal/domain"
)

const (
	segmentLimit = 100
	maxSegments  = 10

	executionKeyPrefix = "execution_"
)

// Journal mirrors execution records into a WAL for audit. Every state
// transition becomes its own entry, so the on-disk log stays strictly
// append-only even though the in-memory record is finalized in place.
type Journal struct {
	mu  sync.Mutex
	wal *gowal.Wal
}

// NewJournal opens (or creates) the WAL under dir.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal dir is required")
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "execution_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init execution journal WAL")
	}
	return &Journal{wal: wal}, nil
}

// Record appends one execution state to the WAL.
func (j *Journal) Record(record domain.ExecutionRecord) error {
	if j == nil || j.wal == nil {
		return errors.New("execution journal is not initialized")
	}
	if record.ID == "" {
		return errors.New("execution record id is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal execution record")
	}

	key := fmt.Sprintf("%s%s_%s", executionKeyPrefix, record.ID, record.Status)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// Close releases the WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return nil
	}
	return j.wal.Close()
}
