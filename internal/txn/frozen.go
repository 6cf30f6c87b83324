package txn

import (
	"fmt"
	"sync"

	"royalty-exchange/go-backend/internal/abi"
)

// Frozen is an immutable group with a derived identifier. It may be embedded
// by reference into later groups and is signed at most once.
type Frozen struct {
	id      GroupID
	entries []Entry
	txIDs   []TxID
	members []TxID

	signOnce sync.Once
	signed   []SignedTxn
	signErr  error
}

func (f *Frozen) ID() GroupID { return f.id }

func (f *Frozen) Len() int { return len(f.entries) }

func (f *Frozen) Entry(i int) Entry { return f.entries[i].clone() }

func (f *Frozen) TxID(i int) TxID { return f.txIDs[i] }

func (f *Frozen) TxIDs() []TxID { return append([]TxID(nil), f.txIDs...) }

func (f *Frozen) MemberIDs() []TxID { return append([]TxID(nil), f.members...) }

func (f *Frozen) Operations() []Operation {
	out := make([]Operation, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.clone().Op
	}
	return out
}

func (f *Frozen) Method(i int) (abi.Method, bool) {
	if i < 0 || i >= len(f.entries) || f.entries[i].Method == nil {
		return abi.Method{}, false
	}
	return *f.entries[i].Method, true
}

// FirstUnsigned returns the index of the first operation with no bound
// signer, including operations of referenced groups.
func (f *Frozen) FirstUnsigned() (int, bool) {
	for i, e := range f.entries {
		if e.Signer == nil {
			return i, true
		}
		for _, r := range e.Refs {
			if r.group.entries[r.index].Signer == nil {
				return i, true
			}
		}
	}
	return 0, false
}

// Sign signs every operation with its bound identity. The signatures are
// computed once and reused on every later call.
func (f *Frozen) Sign() ([]SignedTxn, error) {
	f.signOnce.Do(func() {
		out := make([]SignedTxn, len(f.entries))
		for i, e := range f.entries {
			if e.Signer == nil {
				f.signErr = fmt.Errorf("txn: operation %d has no signer", i)
				return
			}
			payload, err := e.Op.SigningBytes()
			if err != nil {
				f.signErr = err
				return
			}
			sig, err := e.Signer.Sign(payload)
			if err != nil {
				f.signErr = fmt.Errorf("txn: sign operation %d: %w", i, err)
				return
			}
			out[i] = SignedTxn{Txn: e.clone().Op, Sig: sig}
		}
		f.signed = out
	})
	if f.signErr != nil {
		return nil, f.signErr
	}
	return append([]SignedTxn(nil), f.signed...), nil
}

func (f *Frozen) References() []GroupRef {
	var out []GroupRef
	seen := make(map[GroupRefKey]struct{})
	for _, e := range f.entries {
		for _, r := range e.Refs {
			k := r.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func (f *Frozen) Ref(i int) (GroupRef, error) {
	if i < 0 || i >= len(f.entries) {
		return GroupRef{}, fmt.Errorf("%w: index %d outside group of %d", ErrInvalidReference, i, len(f.entries))
	}
	return GroupRef{group: f, index: i}, nil
}

type GroupRefKey struct {
	Group GroupID
	Index int
}

// GroupRef is a read-only structural pointer to one operation of a frozen
// group.
type GroupRef struct {
	group *Frozen
	index int
}

func (r GroupRef) check() error {
	if r.group == nil {
		return fmt.Errorf("%w: no group", ErrInvalidReference)
	}
	if r.index < 0 || r.index >= len(r.group.entries) {
		return fmt.Errorf("%w: index %d", ErrInvalidReference, r.index)
	}
	return nil
}

func (r GroupRef) Group() *Frozen { return r.group }

func (r GroupRef) GroupID() GroupID { return r.group.id }

func (r GroupRef) Index() int { return r.index }

func (r GroupRef) Key() GroupRefKey { return GroupRefKey{Group: r.group.id, Index: r.index} }

func (r GroupRef) Entry() Entry { return r.group.Entry(r.index) }

func (r GroupRef) Signed() (SignedTxn, error) {
	signed, err := r.group.Sign()
	if err != nil {
		return SignedTxn{}, err
	}
	return signed[r.index], nil
}

func (r GroupRef) Members() []TxID { return r.group.MemberIDs() }

func (r GroupRef) Value() abi.GroupRefValue {
	return abi.GroupRefValue{GroupID: r.group.id, Index: uint64(r.index)}
}
