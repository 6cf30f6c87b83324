package orchestrator

import (
	"errors"
	"fmt"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/executor"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/market"
	"royalty-exchange/go-backend/internal/platform/errclass"
	"royalty-exchange/go-backend/internal/royalty"
	"royalty-exchange/go-backend/internal/txn"
)

// StepError stops a run. State is the last confirmed state; everything up to
// it stays committed on the ledger and in the journal.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("orchestrator: run stopped at %s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// PendingError stops a run whose last step went out in a group the ledger
// has neither confirmed nor rejected.
type PendingError struct {
	State   State
	GroupID txn.GroupID
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("orchestrator: group %s for %s is still pending", e.GroupID, e.State)
}

func (e *PendingError) Unwrap() error { return ledger.ErrNotConfirmed }

// classify tags err with the class an operator acts on. Errors already
// tagged keep their class.
func classify(err error) error {
	var (
		notFound  *abi.NotFoundError
		mismatch  *txn.ArgumentMismatchError
		empty     txn.EmptyGroupError
		size      *txn.GroupSizeError
		unsigned  *executor.UnsignedOperationError
		reference *market.ReferenceMismatchError
		rejected  *executor.RejectedError
		timeout   *executor.TimeoutError
		pending   *PendingError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &mismatch), errors.As(err, &empty),
		errors.As(err, &size), errors.As(err, &unsigned), errors.As(err, &reference),
		errors.Is(err, txn.ErrGroupFrozen), errors.Is(err, txn.ErrInvalidReference),
		errors.Is(err, royalty.ErrBasisPoints):
		return errclass.Wrap(errclass.CategoryBuild, err)
	case errors.As(err, &rejected), errors.As(err, &timeout), errors.As(err, &pending):
		return errclass.Wrap(errclass.CategoryExecution, err)
	default:
		return errclass.Wrap(errclass.CategoryLedger, err)
	}
}
