// Package ledger describes the ledger the exchange protocol runs on: how
// groups are submitted and confirmed and how account and application state
// is read back.
package ledger

import (
	"context"

	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/txn"
)

// Client submits atomic groups and tracks them to confirmation.
type Client interface {
	SuggestedParams(ctx context.Context) (txn.Params, error)
	// SubmitGroup hands a signed group to the ledger. A group the ledger
	// refuses up front returns *RejectError.
	SubmitGroup(ctx context.Context, sub Submission) (txn.GroupID, error)
	// WaitForConfirmation blocks until the group commits, is rejected, or
	// rounds more rounds pass, in which case it returns ErrNotConfirmed.
	WaitForConfirmation(ctx context.Context, id txn.GroupID, rounds uint64) (*Receipt, error)
	// GroupStatus reports a submitted group without waiting.
	GroupStatus(ctx context.Context, id txn.GroupID) (GroupStatus, error)
	// Simulate evaluates a group without committing anything.
	Simulate(ctx context.Context, sub Submission) (*Trace, error)
}

// StateReader reads committed ledger state.
type StateReader interface {
	Status(ctx context.Context) (Status, error)
	AccountInfo(ctx context.Context, addr identity.Address) (*Account, error)
	AssetInfo(ctx context.Context, id txn.AssetID) (*Asset, error)
	ApplicationState(ctx context.Context, id txn.AppID) (*Application, error)
}

type Ledger interface {
	Client
	StateReader
}

// Submission is a signed group plus the signed operations of other groups
// it references. References are verified but never executed.
type Submission struct {
	Txns       []txn.SignedTxn `msgpack:"txns"`
	References []Reference     `msgpack:"refs,omitempty"`
}

// Reference proves that Txn is member Index of the group whose members hash
// to Txn.Group.
type Reference struct {
	Index   uint64        `msgpack:"idx"`
	Txn     txn.SignedTxn `msgpack:"stxn"`
	Members []txn.TxID    `msgpack:"members"`
}

// GroupRefKey identifies a referenced operation the way a groupref argument
// encodes it.
type GroupRefKey struct {
	Group txn.GroupID
	Index uint64
}

func (r Reference) Key() GroupRefKey {
	return GroupRefKey{Group: r.Txn.Txn.Group, Index: r.Index}
}

// NewSubmission signs f and collects the operations it references.
func NewSubmission(f *txn.Frozen) (Submission, error) {
	signed, err := f.Sign()
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{Txns: signed}
	for _, ref := range f.References() {
		stxn, err := ref.Signed()
		if err != nil {
			return Submission{}, err
		}
		sub.References = append(sub.References, Reference{
			Index:   uint64(ref.Index()),
			Txn:     stxn,
			Members: ref.Members(),
		})
	}
	return sub, nil
}

func (s Submission) GroupID() txn.GroupID {
	if len(s.Txns) == 0 {
		return txn.GroupID{}
	}
	return s.Txns[0].Txn.Group
}
