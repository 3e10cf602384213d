package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrSnapshotFetchFailed aborts a whole scan cycle. The previously
// published opportunity list is retained; the next tick retries.
var ErrSnapshotFetchFailed = errors.New("borrower snapshot fetch failed")

// MissingPriceError means a borrower references a symbol with no known
// price. Substituting zero or one would corrupt the health factor in
// either direction, so the computation fails loudly and the borrower
// is marked INDETERMINATE for the cycle.
type MissingPriceError struct {
	Symbol string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no known price for symbol %s", e.Symbol)
}

// DuplicateExecutionError rejects a second execution request for a
// borrower while one is already in flight. Expected contention, not an
// operational error.
type DuplicateExecutionError struct {
	Address common.Address
}

func (e *DuplicateExecutionError) Error() string {
	return fmt.Sprintf("execution already in progress for borrower %s", e.Address.Hex())
}
