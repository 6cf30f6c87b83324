package txn

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
	"golang.org/x/crypto/blake2b"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/identity"
)

type State int

const (
	StateDraft State = iota + 1
	StateFrozen
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateFrozen:
		return "frozen"
	}
	return "unknown"
}

// Entry is one operation of a group with the identity bound to sign it.
type Entry struct {
	Op     Operation
	Signer identity.Signer
	// Method is set for typed method calls.
	Method *abi.Method
	// Refs are frozen-group references embedded in the call arguments.
	Refs []GroupRef
}

func (e Entry) clone() Entry {
	out := e
	out.Op.Note = append([]byte(nil), e.Op.Note...)
	if e.Op.AppArgs != nil {
		out.Op.AppArgs = make([][]byte, len(e.Op.AppArgs))
		for i, a := range e.Op.AppArgs {
			out.Op.AppArgs[i] = append([]byte(nil), a...)
		}
	}
	out.Refs = append([]GroupRef(nil), e.Refs...)
	return out
}

// MethodCall describes a typed call to append to a group.
type MethodCall struct {
	AppID      AppID
	Method     abi.Method
	Sender     identity.Address
	Signer     identity.Signer
	Args       []Arg
	OnComplete OnComplete
	Params     Params
	Note       []byte
}

// Builder accumulates a draft group. It is owned by one goroutine until it is
// frozen; after that it only hands out the frozen group.
type Builder struct {
	entries []Entry
	frozen  *Frozen
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) State() State {
	if b.frozen != nil {
		return StateFrozen
	}
	return StateDraft
}

func (b *Builder) Len() int {
	return len(b.entries)
}

func (b *Builder) reserve(n int) error {
	if b.frozen != nil {
		return ErrGroupFrozen
	}
	if size := len(b.entries) + n; size > MaxGroupSize {
		return &GroupSizeError{Size: size, Max: MaxGroupSize}
	}
	return nil
}

// AddTransfer appends a raw operation signed by signer. A nil signer is
// accepted here and rejected at execution time.
func (b *Builder) AddTransfer(op Operation, signer identity.Signer) error {
	if err := b.reserve(1); err != nil {
		return err
	}
	if err := op.Validate(); err != nil {
		return err
	}
	if signer != nil && signer.Address() != op.Sender {
		return fmt.Errorf("%w: %s", ErrSignerAddress, op.Sender)
	}
	op.Group = GroupID{}
	b.entries = append(b.entries, Entry{Op: op, Signer: signer}.clone())
	return nil
}

// AddMethodCall type-checks args against the method signature and appends the
// call, preceded by any transaction-typed arguments in argument order.
func (b *Builder) AddMethodCall(call MethodCall) error {
	if b.frozen != nil {
		return ErrGroupFrozen
	}
	m := call.Method
	if len(call.Args) != len(m.Args) {
		return &ArgumentMismatchError{
			Method: m.Name,
			Index:  -1,
			Want:   fmt.Sprint(len(m.Args)),
			Got:    fmt.Sprint(len(call.Args)),
		}
	}
	if call.Signer != nil && call.Signer.Address() != call.Sender {
		return fmt.Errorf("%w: %s", ErrSignerAddress, call.Sender)
	}

	sel := m.Selector()
	appArgs := [][]byte{append([]byte(nil), sel[:]...)}
	var (
		pre  []Entry
		refs []GroupRef
	)
	for i, a := range call.Args {
		want := m.Args[i].Kind
		if !argMatches(want, a) {
			return &ArgumentMismatchError{Method: m.Name, Index: i, Want: want.String(), Got: argTypeName(a)}
		}
		switch v := a.(type) {
		case TxnArg:
			if err := v.Op.Validate(); err != nil {
				return &ArgumentMismatchError{Method: m.Name, Index: i, Want: want.String(), Got: err.Error()}
			}
			if v.Signer != nil && v.Signer.Address() != v.Op.Sender {
				return fmt.Errorf("%w: argument %d", ErrSignerAddress, i)
			}
			op := v.Op
			op.Group = GroupID{}
			pre = append(pre, Entry{Op: op, Signer: v.Signer})
			continue
		case RefArg:
			if err := v.Ref.check(); err != nil {
				return &ArgumentMismatchError{Method: m.Name, Index: i, Want: want.String(), Got: err.Error()}
			}
			refs = append(refs, v.Ref)
		}
		enc, err := encodeArg(want, a)
		if err != nil {
			return &ArgumentMismatchError{Method: m.Name, Index: i, Want: want.String(), Got: err.Error()}
		}
		appArgs = append(appArgs, enc)
	}

	if err := b.reserve(len(pre) + 1); err != nil {
		return err
	}
	op := appCall(call.Sender, call.AppID, call.OnComplete, appArgs, call.Params)
	op.Note = append([]byte(nil), call.Note...)
	method := m
	for _, e := range pre {
		b.entries = append(b.entries, e.clone())
	}
	b.entries = append(b.entries, Entry{Op: op, Signer: call.Signer, Method: &method, Refs: refs}.clone())
	return nil
}

// Freeze derives the group id and returns the immutable group. Calling it
// again returns the same group without re-deriving anything.
func (b *Builder) Freeze() (*Frozen, error) {
	if b.frozen != nil {
		return b.frozen, nil
	}
	if len(b.entries) == 0 {
		return nil, EmptyGroupError{}
	}
	if len(b.entries) > MaxGroupSize {
		return nil, &GroupSizeError{Size: len(b.entries), Max: MaxGroupSize}
	}

	entries := make([]Entry, len(b.entries))
	preIDs := make([]TxID, len(b.entries))
	for i, e := range b.entries {
		entries[i] = e.clone()
		id, err := entries[i].Op.ID()
		if err != nil {
			return nil, fmt.Errorf("txn: encode operation %d: %w", i, err)
		}
		preIDs[i] = id
	}
	gid, err := DeriveGroupID(preIDs)
	if err != nil {
		return nil, err
	}
	txIDs := make([]TxID, len(entries))
	for i := range entries {
		entries[i].Op.Group = gid
		id, err := entries[i].Op.ID()
		if err != nil {
			return nil, fmt.Errorf("txn: encode operation %d: %w", i, err)
		}
		txIDs[i] = id
	}
	b.frozen = &Frozen{id: gid, entries: entries, txIDs: txIDs, members: preIDs}
	return b.frozen, nil
}

// DeriveGroupID hashes the ids of the group members computed before the
// group id was stamped on them.
func DeriveGroupID(ids []TxID) (GroupID, error) {
	enc, err := msgpack.Marshal(ids)
	if err != nil {
		return GroupID{}, fmt.Errorf("txn: encode group: %w", err)
	}
	return GroupID(blake2b.Sum256(append([]byte("TG"), enc...))), nil
}
