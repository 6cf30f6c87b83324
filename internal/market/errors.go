package market

import (
	"errors"
	"fmt"
)

var ErrNotListed = errors.New("market: asset is not listed")

// ReferenceMismatchError means the offer a listing references does not
// authorize what the listing claims. Field names the disagreeing value.
type ReferenceMismatchError struct {
	Field   string
	Listing string
	Offer   string
}

func (e *ReferenceMismatchError) Error() string {
	return fmt.Sprintf("market: offer reference mismatch on %s: listing %s, offer %s", e.Field, e.Listing, e.Offer)
}
