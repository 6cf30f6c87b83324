package identity

import (
	"crypto/ed25519"
	"errors"
)

var ErrMissingKey = errors.New("identity has no signing key")

// Signer binds an address to the ability to sign for it.
type Signer interface {
	Address() Address
	Sign(msg []byte) ([]byte, error)
}

// Identity is an address plus its private signing key. An Identity is owned
// by exactly one principal and is never shared between runs.
type Identity struct {
	address Address
	priv    ed25519.PrivateKey
}

func newIdentity(priv ed25519.PrivateKey) *Identity {
	pub := priv.Public().(ed25519.PublicKey)
	var addr Address
	copy(addr[:], pub)
	return &Identity{
		address: addr,
		priv:    append(ed25519.PrivateKey(nil), priv...),
	}
}

func (i *Identity) Address() Address {
	if i == nil {
		return Address{}
	}
	return i.address
}

func (i *Identity) Sign(msg []byte) ([]byte, error) {
	if i == nil || len(i.priv) != ed25519.PrivateKeySize {
		return nil, ErrMissingKey
	}
	return ed25519.Sign(i.priv, msg), nil
}

func (i *Identity) String() string {
	return i.Address().String()
}

// Verify checks an ed25519 signature made by the key behind addr.
func Verify(addr Address, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(addr[:]), msg, sig)
}
