package executor

import (
	"fmt"

	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

// UnsignedOperationError means operation Index has no signing identity. The
// group was not submitted.
type UnsignedOperationError struct {
	Index int
}

func (e *UnsignedOperationError) Error() string {
	return fmt.Sprintf("executor: operation %d has no signer", e.Index)
}

// RejectedError means the ledger declined the group. Index is the failing
// operation, or -1 when the group as a whole was refused. Trace is set when
// diagnostics ran.
type RejectedError struct {
	GroupID txn.GroupID
	Index   int
	Reason  string
	Trace   *ledger.Trace
	Err     error
}

func (e *RejectedError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("executor: group %s rejected: %s", e.GroupID, e.Reason)
	}
	return fmt.Sprintf("executor: group %s rejected at operation %d: %s", e.GroupID, e.Index, e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// TimeoutError means the group was not confirmed within Rounds rounds. It
// may still commit later; callers must not resubmit blindly.
type TimeoutError struct {
	GroupID txn.GroupID
	Rounds  uint64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("executor: group %s not confirmed within %d rounds", e.GroupID, e.Rounds)
}

func (e *TimeoutError) Unwrap() error { return ledger.ErrNotConfirmed }
