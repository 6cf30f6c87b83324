package txn

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
	"golang.org/x/crypto/blake2b"

	"royalty-exchange/go-backend/internal/identity"
)

type OpType string

const (
	TypePayment       OpType = "pay"
	TypeAssetTransfer OpType = "axfer"
	TypeAppCall       OpType = "appl"
)

type OnComplete uint8

const (
	NoOp OnComplete = iota
	OptIn
	CloseOut
	ClearState
	UpdateApplication
	DeleteApplication
)

type StateSchema struct {
	NumUint      uint64 `msgpack:"nui,omitempty" json:"num_uint"`
	NumByteSlice uint64 `msgpack:"nbs,omitempty" json:"num_byte_slice"`
}

// Params are the ledger-suggested fee and validity window for new operations.
type Params struct {
	Fee        uint64
	FirstValid uint64
	LastValid  uint64
	GenesisID  string
}

// Operation is one entry of an atomic group. Type selects which of the
// payment, asset transfer or application call fields are meaningful.
type Operation struct {
	Type       OpType           `msgpack:"type"`
	Sender     identity.Address `msgpack:"snd"`
	Fee        uint64           `msgpack:"fee,omitempty"`
	FirstValid uint64           `msgpack:"fv,omitempty"`
	LastValid  uint64           `msgpack:"lv,omitempty"`
	GenesisID  string           `msgpack:"gen,omitempty"`
	Group      GroupID          `msgpack:"grp"`
	Note       []byte           `msgpack:"note,omitempty"`

	Receiver identity.Address `msgpack:"rcv"`
	Amount   uint64           `msgpack:"amt,omitempty"`

	AssetID       AssetID          `msgpack:"xaid,omitempty"`
	AssetAmount   uint64           `msgpack:"aamt,omitempty"`
	AssetReceiver identity.Address `msgpack:"arcv"`
	// AssetSender is set only by the asset's clawback account.
	AssetSender identity.Address `msgpack:"asnd"`

	AppID           AppID       `msgpack:"apid,omitempty"`
	OnComplete      OnComplete  `msgpack:"apan,omitempty"`
	AppArgs         [][]byte    `msgpack:"apaa,omitempty"`
	ApprovalProgram []byte      `msgpack:"apap,omitempty"`
	ClearProgram    []byte      `msgpack:"apsu,omitempty"`
	GlobalSchema    StateSchema `msgpack:"apgs"`
	LocalSchema     StateSchema `msgpack:"apls"`
}

func (o Operation) withParams(p Params) Operation {
	o.Fee = p.Fee
	o.FirstValid = p.FirstValid
	o.LastValid = p.LastValid
	o.GenesisID = p.GenesisID
	return o
}

func Payment(sender, receiver identity.Address, amount uint64, p Params) Operation {
	return Operation{
		Type:     TypePayment,
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
	}.withParams(p)
}

func AssetTransfer(sender, receiver identity.Address, asset AssetID, amount uint64, p Params) Operation {
	return Operation{
		Type:          TypeAssetTransfer,
		Sender:        sender,
		AssetID:       asset,
		AssetAmount:   amount,
		AssetReceiver: receiver,
	}.withParams(p)
}

// AssetOptIn is a zero-amount transfer to self, which allocates a holding.
func AssetOptIn(sender identity.Address, asset AssetID, p Params) Operation {
	return AssetTransfer(sender, sender, asset, 0, p)
}

func AppOptIn(sender identity.Address, app AppID, p Params) Operation {
	return Operation{
		Type:       TypeAppCall,
		Sender:     sender,
		AppID:      app,
		OnComplete: OptIn,
	}.withParams(p)
}

func AppCreate(sender identity.Address, approval, clear []byte, global, local StateSchema, p Params) Operation {
	return Operation{
		Type:            TypeAppCall,
		Sender:          sender,
		ApprovalProgram: append([]byte(nil), approval...),
		ClearProgram:    append([]byte(nil), clear...),
		GlobalSchema:    global,
		LocalSchema:     local,
	}.withParams(p)
}

func appCall(sender identity.Address, app AppID, oc OnComplete, args [][]byte, p Params) Operation {
	return Operation{
		Type:       TypeAppCall,
		Sender:     sender,
		AppID:      app,
		OnComplete: oc,
		AppArgs:    args,
	}.withParams(p)
}

// Validate checks structural well-formedness only.
func (o Operation) Validate() error {
	switch o.Type {
	case TypePayment, TypeAssetTransfer:
	case TypeAppCall:
		if o.AppID == 0 && len(o.ApprovalProgram) == 0 {
			return fmt.Errorf("txn: application create without approval program")
		}
	default:
		return fmt.Errorf("txn: unknown operation type %q", o.Type)
	}
	if o.Sender.IsZero() {
		return fmt.Errorf("txn: %s operation without sender", o.Type)
	}
	if o.LastValid < o.FirstValid {
		return fmt.Errorf("txn: invalid validity window %d..%d", o.FirstValid, o.LastValid)
	}
	return nil
}

// Encode returns the canonical encoding used for ids and signatures.
func (o Operation) Encode() ([]byte, error) {
	return msgpack.Marshal(o)
}

func DecodeOperation(b []byte) (Operation, error) {
	var o Operation
	err := msgpack.Unmarshal(b, &o)
	return o, err
}

// SigningBytes is the domain-separated payload that gets signed.
func (o Operation) SigningBytes() ([]byte, error) {
	enc, err := o.Encode()
	if err != nil {
		return nil, err
	}
	return append([]byte("TX"), enc...), nil
}

func (o Operation) ID() (TxID, error) {
	payload, err := o.SigningBytes()
	if err != nil {
		return TxID{}, err
	}
	return TxID(blake2b.Sum256(payload)), nil
}

// UngroupedID is the id of o with its group id cleared, as used for
// deriving the group id.
func (o Operation) UngroupedID() (TxID, error) {
	o.Group = GroupID{}
	return o.ID()
}

type SignedTxn struct {
	Txn Operation `msgpack:"txn"`
	Sig []byte    `msgpack:"sig"`
}

func (s SignedTxn) Verify() bool {
	payload, err := s.Txn.SigningBytes()
	if err != nil {
		return false
	}
	return identity.Verify(s.Txn.Sender, payload, s.Sig)
}
