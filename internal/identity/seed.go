package identity

import (
	"errors"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrMnemonicRequired = errors.New("mnemonic is required")
)

// Generate creates a fresh account and returns it with its mnemonic.
func Generate() (*Identity, string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", err
	}
	id, err := FromMnemonic(mnemonic)
	if err != nil {
		return nil, "", err
	}
	return id, mnemonic, nil
}

// FromMnemonic deterministically rebuilds an account from its mnemonic.
func FromMnemonic(mnemonic string) (*Identity, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, ErrMnemonicRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	priv, err := DeriveSigningKey(bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return nil, err
	}
	return newIdentity(priv), nil
}

func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(strings.TrimSpace(mnemonic))
}
