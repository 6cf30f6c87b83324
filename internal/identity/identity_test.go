package identity

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"royalty-exchange/go-backend/internal/testutil/fsperm"
)

func TestFromMnemonicDeterministic(t *testing.T) {
	id, mnemonic, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	again, err := FromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("from mnemonic failed: %v", err)
	}
	if id.Address() != again.Address() {
		t.Fatal("same mnemonic should produce the same address")
	}
}

func TestFromMnemonicInvalidInputs(t *testing.T) {
	if _, err := FromMnemonic(""); !errors.Is(err, ErrMnemonicRequired) {
		t.Fatalf("expected ErrMnemonicRequired, got %v", err)
	}
	if _, err := FromMnemonic("not a mnemonic"); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}

func TestSignVerify(t *testing.T) {
	id, _, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	msg := []byte("payload")
	sig, err := id.Sign(msg)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if !Verify(id.Address(), msg, sig) {
		t.Fatal("signature should verify")
	}
	if Verify(id.Address(), []byte("other"), sig) {
		t.Fatal("signature must not verify a different message")
	}
	var nilID *Identity
	if _, err := nilID.Sign(msg); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestAddressTextRoundTrip(t *testing.T) {
	id, _, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	parsed, err := ParseAddress(id.Address().String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed != id.Address() {
		t.Fatal("parsed address mismatch")
	}
}

func TestParseAddressRejectsBadChecksum(t *testing.T) {
	id, _, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	text := []byte(id.Address().String())
	// Flip one character to a different base58 digit.
	if text[len(text)-1] == '2' {
		text[len(text)-1] = '3'
	} else {
		text[len(text)-1] = '2'
	}
	if _, err := ParseAddress(string(text)); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestEncryptDecryptSeed(t *testing.T) {
	seed := []byte("mnemonic-bytes-placeholder")
	password := []byte("strong-password")

	env, err := EncryptSeed(seed, password)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	got, err := DecryptSeed(env, password)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(seed, got) {
		t.Fatal("decrypted seed mismatch")
	}
}

func TestDecryptSeedRejectsKDFDowngrade(t *testing.T) {
	env, err := EncryptSeed([]byte("seed-value"), []byte("password"))
	if err != nil {
		t.Fatalf("encrypt seed failed: %v", err)
	}

	downgraded := *env
	downgraded.KDFMemoryKB = 8 * 1024
	if _, err := DecryptSeed(&downgraded, []byte("password")); err == nil {
		t.Fatal("expected error for downgraded kdf policy")
	}
}

func TestKeystoreSaveLoad(t *testing.T) {
	_, sellerMnemonic, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	_, buyerMnemonic, err := Generate()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "keystore.json")
	if err := SaveKeystore(path, "pw", map[string]string{"seller": sellerMnemonic, "buyer": buyerMnemonic}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	fsperm.AssertPrivateFile(t, path)
	if _, err := LoadKeystore(path, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	ks, err := LoadKeystore(path, "pw")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := ks.Names(); len(got) != 2 || got[0] != "buyer" || got[1] != "seller" {
		t.Fatalf("unexpected names: %v", got)
	}
	seller, err := ks.Account("seller")
	if err != nil {
		t.Fatalf("account failed: %v", err)
	}
	want, _ := FromMnemonic(sellerMnemonic)
	if seller.Address() != want.Address() {
		t.Fatal("keystore account mismatch")
	}
	if _, err := ks.Account("nobody"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}
