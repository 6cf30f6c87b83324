// Package errclass sorts errors into the coarse classes operators act on.
package errclass

import (
	"errors"
	"strings"
)

const (
	// CategoryBuild is a malformed group or call, caught before submission.
	CategoryBuild = "build"
	// CategoryExecution is a group the ledger rejected or did not confirm.
	CategoryExecution = "execution"
	// CategoryLedger is a failure to reach or read the ledger.
	CategoryLedger = "ledger"
	// CategoryStorage is a checkpoint journal failure.
	CategoryStorage  = "storage"
	CategoryInternal = "internal"
)

type CategorizedError struct {
	Category string
	Err      error
}

func (e *CategorizedError) Error() string {
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func normalizeCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case CategoryBuild:
		return CategoryBuild
	case CategoryExecution:
		return CategoryExecution
	case CategoryLedger:
		return CategoryLedger
	case CategoryStorage:
		return CategoryStorage
	default:
		return CategoryInternal
	}
}

// Wrap tags err with category. An already categorized error keeps its
// category.
func Wrap(category string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return &CategorizedError{
		Category: normalizeCategory(category),
		Err:      err,
	}
}

func Category(err error) string {
	var classified *CategorizedError
	if errors.As(err, &classified) {
		return normalizeCategory(classified.Category)
	}
	return CategoryInternal
}

func ExitCode(category string) int {
	switch normalizeCategory(category) {
	case CategoryBuild:
		return 3
	case CategoryExecution:
		return 4
	case CategoryLedger:
		return 5
	case CategoryStorage:
		return 6
	default:
		return 1
	}
}
