package txn

import (
	"encoding/binary"
	"strconv"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"

	"royalty-exchange/go-backend/internal/identity"
)

type AppID uint64

type AssetID uint64

func (id AppID) String() string   { return strconv.FormatUint(uint64(id), 10) }
func (id AssetID) String() string { return strconv.FormatUint(uint64(id), 10) }

type TxID [32]byte

func (id TxID) String() string { return base58.Encode(id[:]) }

func (id TxID) IsZero() bool { return id == TxID{} }

func ParseTxID(s string) (TxID, error) {
	var id TxID
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != len(id) {
		return TxID{}, ErrInvalidTxID
	}
	copy(id[:], raw)
	return id, nil
}

type GroupID [32]byte

func (id GroupID) String() string { return base58.Encode(id[:]) }

func (id GroupID) IsZero() bool { return id == GroupID{} }

func ParseGroupID(s string) (GroupID, error) {
	id, err := ParseTxID(s)
	return GroupID(id), err
}

func ApplicationAddress(app AppID) identity.Address {
	buf := append([]byte("appID"), binary.BigEndian.AppendUint64(nil, uint64(app))...)
	return identity.Address(blake2b.Sum256(buf))
}
