package models

import (
	"encoding/base64"
	"strings"

	"github.com/vmihailenco/msgpack"
)

// JSON-RPC methods served by ledgerd.
const (
	MethodHealthCheck      = "health_check"
	MethodStatus           = "ledger_status"
	MethodSuggestedParams  = "suggested_params"
	MethodSubmitGroup      = "submit_group"
	MethodGroupStatus      = "group_status"
	MethodSimulate         = "simulate"
	MethodAccountInfo      = "account_info"
	MethodAssetInfo        = "asset_info"
	MethodApplicationState = "application_state"
)

// JSON-RPC error codes beyond the standard ones.
const (
	CodeRejected     = -32010
	CodeUnknownGroup = -32011
	CodeUnknownApp   = -32012
	CodeUnknownAsset = -32013
	CodeLedger       = -32050
	CodeRateLimited  = -32029
	CodeUnavailable  = -32099
)

// SuggestedParams mirrors txn.Params on the wire.
type SuggestedParams struct {
	Fee        uint64 `json:"fee"`
	FirstValid uint64 `json:"first_valid"`
	LastValid  uint64 `json:"last_valid"`
	GenesisID  string `json:"genesis_id"`
}

// SubmissionParams carries a msgpack-encoded ledger submission.
type SubmissionParams struct {
	Submission Blob `json:"submission"`
}

type SubmitGroupResult struct {
	GroupID string `json:"group_id"`
}

type GroupIDParams struct {
	GroupID string `json:"group_id"`
}

// GroupStatusResult reports a submitted group. Receipt is set once it is
// confirmed, RejectIndex and RejectReason once it is rejected.
type GroupStatusResult struct {
	State        string `json:"state"`
	LastRound    uint64 `json:"last_round"`
	Receipt      Blob   `json:"receipt,omitempty"`
	RejectIndex  int    `json:"reject_index,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
}

type SimulateResult struct {
	Trace Blob `json:"trace"`
}

type AddressParams struct {
	Address string `json:"address"`
}

type AssetParams struct {
	AssetID uint64 `json:"asset_id"`
}

type AppParams struct {
	AppID uint64 `json:"app_id"`
}

// RejectData is the error data of CodeRejected.
type RejectData struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Blob is a msgpack value in standard base64.
type Blob string

func EncodeBlob(v any) (Blob, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}
	return Blob(base64.StdEncoding.EncodeToString(b)), nil
}

func (b Blob) Decode(v any) error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(raw, v)
}

func (b Blob) IsZero() bool { return strings.TrimSpace(string(b)) == "" }
