package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/ledger"
	"royalty-exchange/go-backend/internal/txn"
	"royalty-exchange/go-backend/pkg/models"
)

var errInvalidParams = errors.New("invalid params")

// decodeParams accepts a params object, or a one-element array holding it.
func decodeParams(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errInvalidParams
	}
	if raw[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil || len(arr) != 1 {
			return errInvalidParams
		}
		raw = arr[0]
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errInvalidParams
	}
	return nil
}

func decodeSubmission(raw json.RawMessage) (ledger.Submission, error) {
	var p models.SubmissionParams
	if err := decodeParams(raw, &p); err != nil || p.Submission.IsZero() {
		return ledger.Submission{}, errInvalidParams
	}
	var sub ledger.Submission
	if err := p.Submission.Decode(&sub); err != nil || len(sub.Txns) == 0 {
		return ledger.Submission{}, errInvalidParams
	}
	return sub, nil
}

func decodeGroupID(raw json.RawMessage) (txn.GroupID, error) {
	var p models.GroupIDParams
	if err := decodeParams(raw, &p); err != nil {
		return txn.GroupID{}, errInvalidParams
	}
	id, err := txn.ParseGroupID(strings.TrimSpace(p.GroupID))
	if err != nil {
		return txn.GroupID{}, errInvalidParams
	}
	return id, nil
}

func decodeAddress(raw json.RawMessage) (identity.Address, error) {
	var p models.AddressParams
	if err := decodeParams(raw, &p); err != nil {
		return identity.Address{}, errInvalidParams
	}
	addr, err := identity.ParseAddress(strings.TrimSpace(p.Address))
	if err != nil {
		return identity.Address{}, errInvalidParams
	}
	return addr, nil
}

func callWithoutParams(call func() (any, error)) (any, *rpcError) {
	result, err := call()
	if err != nil {
		return nil, mapLedgerError(err)
	}
	return result, nil
}

func callWithSubmission(raw json.RawMessage, call func(ledger.Submission) (any, error)) (any, *rpcError) {
	sub, err := decodeSubmission(raw)
	if err != nil {
		return nil, rpcInvalidParams()
	}
	return callWithoutParams(func() (any, error) { return call(sub) })
}

func callWithGroupID(raw json.RawMessage, call func(txn.GroupID) (any, error)) (any, *rpcError) {
	id, err := decodeGroupID(raw)
	if err != nil {
		return nil, rpcInvalidParams()
	}
	return callWithoutParams(func() (any, error) { return call(id) })
}

func callWithAddress(raw json.RawMessage, call func(identity.Address) (any, error)) (any, *rpcError) {
	addr, err := decodeAddress(raw)
	if err != nil {
		return nil, rpcInvalidParams()
	}
	return callWithoutParams(func() (any, error) { return call(addr) })
}
