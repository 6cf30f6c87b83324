package abi

import (
	"fmt"
	"strings"
)

// Kind is the parsed form of an interface type string. Type strings are parsed
// once when an interface is loaded; calls never look at the raw strings again.
type Kind int

const (
	KindInvalid Kind = iota
	KindVoid
	KindUint64
	KindBool
	KindString
	KindBytes
	KindAddress
	KindAccount
	KindAsset
	KindApplication
	KindPayTxn
	KindAxferTxn
	KindApplTxn
	KindAnyTxn
	KindGroupRef
)

var kindNames = map[Kind]string{
	KindVoid:        "void",
	KindUint64:      "uint64",
	KindBool:        "bool",
	KindString:      "string",
	KindBytes:       "byte[]",
	KindAddress:     "address",
	KindAccount:     "account",
	KindAsset:       "asset",
	KindApplication: "application",
	KindPayTxn:      "pay",
	KindAxferTxn:    "axfer",
	KindApplTxn:     "appl",
	KindAnyTxn:      "txn",
	KindGroupRef:    "groupref",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		out[name] = k
	}
	return out
}()

func ParseKind(s string) (Kind, error) {
	k, ok := kindsByName[strings.TrimSpace(s)]
	if !ok {
		return KindInvalid, fmt.Errorf("unsupported abi type %q", s)
	}
	return k, nil
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsTxn reports whether arguments of this kind are whole operations placed in
// the group ahead of the call instead of encoded bytes.
func (k Kind) IsTxn() bool {
	switch k {
	case KindPayTxn, KindAxferTxn, KindApplTxn, KindAnyTxn:
		return true
	}
	return false
}

// AcceptsTxnType reports whether an operation of the given type string
// satisfies a transaction-kind argument.
func (k Kind) AcceptsTxnType(opType string) bool {
	switch k {
	case KindAnyTxn:
		return true
	case KindPayTxn:
		return opType == "pay"
	case KindAxferTxn:
		return opType == "axfer"
	case KindApplTxn:
		return opType == "appl"
	}
	return false
}
