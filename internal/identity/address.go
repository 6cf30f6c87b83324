package identity

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	AddressSize  = 32
	checksumSize = 4
)

var ErrInvalidAddress = errors.New("invalid address")

// Address is the ed25519 public key of an account. Its text form is
// base58(pubkey || checksum) where checksum is the tail of blake2b-256(pubkey).
type Address [AddressSize]byte

// ZeroAddress is used by contracts as "no address".
var ZeroAddress Address

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	sum := blake2b.Sum256(a[:])
	buf := make([]byte, 0, AddressSize+checksumSize)
	buf = append(buf, a[:]...)
	buf = append(buf, sum[len(sum)-checksumSize:]...)
	return base58.Encode(buf)
}

func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != AddressSize+checksumSize {
		return Address{}, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(raw))
	}
	var addr Address
	copy(addr[:], raw[:AddressSize])
	sum := blake2b.Sum256(addr[:])
	if !bytes.Equal(raw[AddressSize:], sum[len(sum)-checksumSize:]) {
		return Address{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return addr, nil
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
