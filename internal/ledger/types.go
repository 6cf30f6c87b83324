package ledger

import (
	"royalty-exchange/go-backend/internal/identity"
	"royalty-exchange/go-backend/internal/txn"
)

type Status struct {
	LastRound uint64 `json:"last_round"`
	GenesisID string `json:"genesis_id"`
}

type AssetHolding struct {
	AssetID txn.AssetID `json:"asset_id"`
	Amount  uint64      `json:"amount"`
	Frozen  bool        `json:"frozen"`
}

type Account struct {
	Address   identity.Address               `json:"address"`
	Balance   uint64                         `json:"balance"`
	Assets    []AssetHolding                 `json:"assets,omitempty"`
	AppsLocal map[txn.AppID]map[string]Value `json:"apps_local,omitempty"`
	Round     uint64                         `json:"round"`
}

func (a *Account) Holding(id txn.AssetID) (AssetHolding, bool) {
	for _, h := range a.Assets {
		if h.AssetID == id {
			return h, true
		}
	}
	return AssetHolding{}, false
}

func (a *Account) OptedIn(app txn.AppID) bool {
	_, ok := a.AppsLocal[app]
	return ok
}

type Asset struct {
	ID            txn.AssetID      `json:"id"`
	Creator       identity.Address `json:"creator"`
	Total         uint64           `json:"total"`
	Decimals      uint32           `json:"decimals"`
	UnitName      string           `json:"unit_name"`
	Name          string           `json:"name"`
	DefaultFrozen bool             `json:"default_frozen"`
	Manager       identity.Address `json:"manager"`
	Clawback      identity.Address `json:"clawback"`
	Freeze        identity.Address `json:"freeze"`
}

type Application struct {
	ID           txn.AppID        `json:"id"`
	Creator      identity.Address `json:"creator"`
	Address      identity.Address `json:"address"`
	Program      string           `json:"program"`
	GlobalSchema txn.StateSchema  `json:"global_schema"`
	LocalSchema  txn.StateSchema  `json:"local_schema"`
	Global       map[string]Value `json:"global,omitempty"`
}

type ValueType uint8

const (
	ValueUint ValueType = iota + 1
	ValueBytes
)

type Value struct {
	Type  ValueType `json:"type" msgpack:"tt"`
	Uint  uint64    `json:"uint,omitempty" msgpack:"ui,omitempty"`
	Bytes []byte    `json:"bytes,omitempty" msgpack:"tb,omitempty"`
}

func UintValue(v uint64) Value { return Value{Type: ValueUint, Uint: v} }

func BytesValue(b []byte) Value { return Value{Type: ValueBytes, Bytes: append([]byte(nil), b...)} }

type TxnResult struct {
	TxID           txn.TxID        `json:"txid" msgpack:"txid"`
	Logs           [][]byte        `json:"logs,omitempty" msgpack:"logs,omitempty"`
	CreatedAppID   txn.AppID       `json:"created_app_id,omitempty" msgpack:"apid,omitempty"`
	CreatedAssetID txn.AssetID     `json:"created_asset_id,omitempty" msgpack:"caid,omitempty"`
	Inner          []txn.Operation `json:"inner,omitempty" msgpack:"inner,omitempty"`
}

// Receipt is the confirmation of a whole group.
type Receipt struct {
	GroupID        txn.GroupID `json:"group_id" msgpack:"grp"`
	ConfirmedRound uint64      `json:"confirmed_round" msgpack:"round"`
	Results        []TxnResult `json:"results" msgpack:"results"`
}

type OpTrace struct {
	Index    int      `json:"index" msgpack:"idx"`
	TxID     txn.TxID `json:"txid" msgpack:"txid"`
	Type     string   `json:"type" msgpack:"type"`
	Steps    []string `json:"steps,omitempty" msgpack:"steps,omitempty"`
	Logs     [][]byte `json:"logs,omitempty" msgpack:"logs,omitempty"`
	Rejected bool     `json:"rejected,omitempty" msgpack:"rej,omitempty"`
	Reason   string   `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// Trace is the per-operation result of a simulation. Evaluation stops at the
// first rejected operation.
type Trace struct {
	Round uint64    `json:"round" msgpack:"round"`
	Ops   []OpTrace `json:"ops" msgpack:"ops"`
}

func (t *Trace) Failed() (OpTrace, bool) {
	if t == nil {
		return OpTrace{}, false
	}
	for _, op := range t.Ops {
		if op.Rejected {
			return op, true
		}
	}
	return OpTrace{}, false
}

type GroupState string

const (
	GroupPending   GroupState = "pending"
	GroupConfirmed GroupState = "confirmed"
	GroupRejected  GroupState = "rejected"
)

// GroupStatus is the lifecycle position of a submitted group as seen at
// LastRound.
type GroupStatus struct {
	State     GroupState   `json:"state"`
	LastRound uint64       `json:"last_round"`
	Receipt   *Receipt     `json:"receipt,omitempty"`
	Reject    *RejectError `json:"reject,omitempty"`
}
