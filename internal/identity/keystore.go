package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrPasswordRequired = errors.New("password is required")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrUnknownAccount   = errors.New("account not in keystore")
)

// Keystore holds named account mnemonics sealed under one password.
type Keystore struct {
	accounts map[string]*Identity
}

func NewKeystore(mnemonics map[string]string) (*Keystore, error) {
	ks := &Keystore{accounts: make(map[string]*Identity, len(mnemonics))}
	for name, mnemonic := range mnemonics {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("keystore: empty account name")
		}
		id, err := FromMnemonic(mnemonic)
		if err != nil {
			return nil, fmt.Errorf("keystore: account %s: %w", name, err)
		}
		ks.accounts[name] = id
	}
	return ks, nil
}

func (k *Keystore) Account(name string) (*Identity, error) {
	id, ok := k.accounts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, name)
	}
	return id, nil
}

func (k *Keystore) Names() []string {
	out := make([]string, 0, len(k.accounts))
	for name := range k.accounts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SaveKeystore seals mnemonics with password and writes them to path.
func SaveKeystore(path, password string, mnemonics map[string]string) error {
	if strings.TrimSpace(password) == "" {
		return ErrPasswordRequired
	}
	for name, mnemonic := range mnemonics {
		if !ValidateMnemonic(mnemonic) {
			return fmt.Errorf("keystore: account %s: %w", name, ErrInvalidMnemonic)
		}
	}
	plaintext, err := json.Marshal(mnemonics)
	if err != nil {
		return err
	}
	defer zeroBytes(plaintext)
	env, err := EncryptSeed(plaintext, []byte(password))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func LoadKeystore(path, password string) (*Keystore, error) {
	if strings.TrimSpace(password) == "" {
		return nil, ErrPasswordRequired
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var env EncryptedSeedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("keystore: decode envelope: %w", err)
	}
	plaintext, err := DecryptSeed(&env, []byte(password))
	if err != nil {
		return nil, ErrInvalidPassword
	}
	defer zeroBytes(plaintext)
	var mnemonics map[string]string
	if err := json.Unmarshal(plaintext, &mnemonics); err != nil {
		return nil, fmt.Errorf("keystore: decode accounts: %w", err)
	}
	return NewKeystore(mnemonics)
}
