package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ExecutionStatus is the lifecycle state of an execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// ExecutionRecord is one liquidation attempt. The opportunity is an
// immutable copy, not a reference: the live opportunity list may have
// been replaced by the time execution completes. Records are
// append-only and owned by the executor adapter, its sole mutator.
type ExecutionRecord struct {
	ID            string                 `json:"id"`
	Opportunity   LiquidationOpportunity `json:"opportunity"`
	Status        ExecutionStatus        `json:"status"`
	TxHash        common.Hash            `json:"tx_hash,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at,omitempty"`
	FailureReason string                 `json:"failure_reason,omitempty"`
}
