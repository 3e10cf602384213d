// Package snapshot defines the borrower snapshot collaborator
// boundary. The monitor does not care how snapshots are produced, only
// their shape; a real on-chain indexer and the synthetic demo
// generator sit behind the same contract.
package snapshot

import (
	"context"

	"github.com/vadiminshakov/liqmon/internal/domain"
)

// Source produces a full, internally consistent view of all borrower
// positions on demand.
type Source interface {
	Snapshot(ctx context.Context) ([]domain.Borrower, error)
}
