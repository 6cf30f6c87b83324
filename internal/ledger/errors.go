package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfirmed = errors.New("ledger: group not confirmed")
	ErrUnknownTxn   = errors.New("ledger: unknown transaction group")
	ErrUnknownApp   = errors.New("ledger: unknown application")
	ErrUnknownAsset = errors.New("ledger: unknown asset")
)

// RejectError means the ledger declined the group because operation Index
// failed. Nothing in the group was committed.
type RejectError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

func (e *RejectError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("ledger: group rejected: %s", e.Reason)
	}
	return fmt.Sprintf("ledger: operation %d rejected: %s", e.Index, e.Reason)
}
