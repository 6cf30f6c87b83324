package simnet

import (
	"fmt"

	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
)

func reject(index int, format string, args ...any) error {
	return &ledger.RejectError{Index: index, Reason: fmt.Sprintf(format, args...)}
}

// checkLocked runs the stateless checks on a submission for the given round
// and returns the operation ids.
func (l *Ledger) checkLocked(sub ledger.Submission, round uint64) ([]txn.TxID, error) {
	n := len(sub.Txns)
	if n == 0 {
		return nil, reject(-1, "empty group")
	}
	if n > txn.MaxGroupSize {
		return nil, reject(-1, "group of %d exceeds %d", n, txn.MaxGroupSize)
	}

	gid := sub.GroupID()
	ids := make([]txn.TxID, n)
	members := make([]txn.TxID, n)
	inGroup := make(map[txn.TxID]struct{}, n)
	for i, stxn := range sub.Txns {
		op := stxn.Txn
		if err := op.Validate(); err != nil {
			return nil, reject(i, "%v", err)
		}
		if op.Group != gid {
			return nil, reject(i, "group id mismatch")
		}
		if !stxn.Verify() {
			return nil, reject(i, "invalid signature")
		}
		if op.Fee < l.cfg.MinFee {
			return nil, reject(i, "fee %d below minimum %d", op.Fee, l.cfg.MinFee)
		}
		if op.GenesisID != "" && op.GenesisID != l.cfg.GenesisID {
			return nil, reject(i, "genesis %q does not match %q", op.GenesisID, l.cfg.GenesisID)
		}
		if round < op.FirstValid || round > op.LastValid {
			return nil, reject(i, "round %d outside validity window %d..%d", round, op.FirstValid, op.LastValid)
		}
		id, err := op.ID()
		if err != nil {
			return nil, reject(i, "encode: %v", err)
		}
		if _, dup := inGroup[id]; dup {
			return nil, reject(i, "duplicate operation in group")
		}
		inGroup[id] = struct{}{}
		if r, ok := l.seen[id]; ok {
			return nil, reject(i, "operation %s already committed in round %d", id, r)
		}
		if _, ok := l.queued[id]; ok {
			return nil, reject(i, "operation %s already pending", id)
		}
		member, err := op.UngroupedID()
		if err != nil {
			return nil, reject(i, "encode: %v", err)
		}
		ids[i], members[i] = id, member
	}

	if gid.IsZero() {
		if n > 1 {
			return nil, reject(-1, "group of %d operations without group id", n)
		}
	} else {
		want, err := txn.DeriveGroupID(members)
		if err != nil || want != gid {
			return nil, reject(-1, "group id does not match members")
		}
	}

	for _, ref := range sub.References {
		if err := checkReference(ref); err != nil {
			return nil, reject(-1, "reference %s/%d: %v", ref.Txn.Txn.Group, ref.Index, err)
		}
	}
	return ids, nil
}

// checkReference proves that a referenced operation is signed and is member
// Index of the group it claims.
func checkReference(ref ledger.Reference) error {
	if len(ref.Members) == 0 || len(ref.Members) > txn.MaxGroupSize {
		return fmt.Errorf("group of %d members", len(ref.Members))
	}
	if ref.Index >= uint64(len(ref.Members)) {
		return fmt.Errorf("index outside group of %d", len(ref.Members))
	}
	if !ref.Txn.Verify() {
		return fmt.Errorf("invalid signature")
	}
	member, err := ref.Txn.Txn.UngroupedID()
	if err != nil {
		return err
	}
	if member != ref.Members[ref.Index] {
		return fmt.Errorf("operation is not the referenced member")
	}
	gid, err := txn.DeriveGroupID(ref.Members)
	if err != nil {
		return err
	}
	if gid != ref.Txn.Txn.Group {
		return fmt.Errorf("members do not hash to the group id")
	}
	return nil
}
