package txn

import (
	"fmt"

	"royalty-exchange/go-backend/internal/abi"
	"royalty-exchange/go-backend/internal/identity"
)

// Arg is a method call argument. The concrete types form a closed set; each
// one matches the abi kinds listed next to it.
type Arg interface {
	argName() string
}

type (
	Uint64Arg  uint64           // uint64
	BoolArg    bool             // bool
	StringArg  string           // string
	BytesArg   []byte           // byte[]
	AddressArg identity.Address // address, account
	AssetArg   AssetID          // asset
	AppArg     AppID            // application
)

// TxnArg is an operation placed in the group directly before the call.
type TxnArg struct {
	Op     Operation
	Signer identity.Signer
}

// RefArg points at one operation of an already frozen group. The referenced
// group is neither re-signed nor executed by the group that embeds it.
type RefArg struct {
	Ref GroupRef
}

func (Uint64Arg) argName() string  { return "uint64" }
func (BoolArg) argName() string    { return "bool" }
func (StringArg) argName() string  { return "string" }
func (BytesArg) argName() string   { return "byte[]" }
func (AddressArg) argName() string { return "address" }
func (AssetArg) argName() string   { return "asset" }
func (AppArg) argName() string     { return "application" }
func (a TxnArg) argName() string   { return fmt.Sprintf("txn(%s)", a.Op.Type) }
func (RefArg) argName() string     { return "groupref" }

func argMatches(k abi.Kind, a Arg) bool {
	switch v := a.(type) {
	case Uint64Arg:
		return k == abi.KindUint64
	case BoolArg:
		return k == abi.KindBool
	case StringArg:
		return k == abi.KindString
	case BytesArg:
		return k == abi.KindBytes
	case AddressArg:
		return k == abi.KindAddress || k == abi.KindAccount
	case AssetArg:
		return k == abi.KindAsset
	case AppArg:
		return k == abi.KindApplication
	case TxnArg:
		return k.IsTxn() && k.AcceptsTxnType(string(v.Op.Type))
	case RefArg:
		return k == abi.KindGroupRef
	}
	return false
}

func encodeArg(k abi.Kind, a Arg) ([]byte, error) {
	switch v := a.(type) {
	case Uint64Arg:
		return abi.EncodeValue(k, uint64(v))
	case BoolArg:
		return abi.EncodeValue(k, bool(v))
	case StringArg:
		return abi.EncodeValue(k, string(v))
	case BytesArg:
		return abi.EncodeValue(k, []byte(v))
	case AddressArg:
		return abi.EncodeValue(k, identity.Address(v))
	case AssetArg:
		return abi.EncodeValue(k, uint64(v))
	case AppArg:
		return abi.EncodeValue(k, uint64(v))
	case RefArg:
		return abi.EncodeValue(k, v.Ref.Value())
	}
	return nil, fmt.Errorf("txn: %s has no byte encoding", a.argName())
}

func argTypeName(a Arg) string {
	if a == nil {
		return "nil"
	}
	return a.argName()
}
