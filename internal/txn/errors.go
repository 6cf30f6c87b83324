package txn

import (
	"errors"
	"fmt"
)

// MaxGroupSize is the ledger's bound on operations per atomic group.
const MaxGroupSize = 16

var (
	ErrGroupFrozen      = errors.New("txn: group is frozen")
	ErrInvalidTxID      = errors.New("txn: invalid transaction id")
	ErrInvalidReference = errors.New("txn: invalid group reference")
	ErrSignerAddress    = errors.New("txn: signer does not match operation sender")
)

// ArgumentMismatchError reports an arity or type violation while building a
// method call. It is a programming error and never reaches the ledger.
type ArgumentMismatchError struct {
	Method string
	Index  int
	Want   string
	Got    string
}

func (e *ArgumentMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("txn: %s: want %s arguments, got %s", e.Method, e.Want, e.Got)
	}
	return fmt.Sprintf("txn: %s: argument %d: want %s, got %s", e.Method, e.Index, e.Want, e.Got)
}

type EmptyGroupError struct{}

func (EmptyGroupError) Error() string { return "txn: cannot freeze an empty group" }

type GroupSizeError struct {
	Size int
	Max  int
}

func (e *GroupSizeError) Error() string {
	return fmt.Sprintf("txn: group of %d operations exceeds maximum %d", e.Size, e.Max)
}
