package wallet

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"os"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/xerrors"

	"example.com/tokenledger/pkg/tokens"
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Wallet stores the private and public keys
type Wallet struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// NewWallet creates and returns a new wallet
func NewWallet() (*Wallet, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, xerrors.Errorf("generate key pair: %w", err)
	}
	return &Wallet{PrivateKey: privateKey, PublicKey: publicKey}, nil
}

// FromSeed derives a wallet deterministically from a 32-byte seed.
func FromSeed(seed []byte) (*Wallet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, xerrors.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	return &Wallet{PrivateKey: privateKey, PublicKey: privateKey.Public().(ed25519.PublicKey)}, nil
}

// Address returns the ledger account id of the wallet.
func (w *Wallet) Address() tokens.AccountID {
	return AccountIDFromPublicKey(w.PublicKey)
}

// AccountIDFromPublicKey hashes a public key with BLAKE2b-256.
func AccountIDFromPublicKey(pubKey []byte) tokens.AccountID {
	return tokens.AccountID(blake2b.Sum256(pubKey))
}

// ParsePublicKey decodes a hex ed25519 public key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, xerrors.Errorf("decode public key: %v: %w", err, ErrInvalidPublicKey)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return ed25519.PublicKey(raw), nil
}

// BackupWallet saves the wallet to a file
func (w *Wallet) BackupWallet(filename string) error {
	data, err := w.Serialize()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return xerrors.Errorf("backup wallet: %w", err)
	}

	return nil
}

// RestoreWallet loads a wallet from a file
func RestoreWallet(filename string) (*Wallet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, xerrors.Errorf("restore wallet: %w", err)
	}

	wallet, err := Deserialize(data)
	if err != nil {
		return nil, xerrors.Errorf("deserialize wallet: %w", err)
	}
	if len(wallet.PrivateKey) != ed25519.PrivateKeySize || len(wallet.PublicKey) != ed25519.PublicKeySize {
		return nil, xerrors.Errorf("wallet %s: %w", filename, ErrInvalidPublicKey)
	}

	return wallet, nil
}

// Serialize converts a wallet to bytes for storage
func (w *Wallet) Serialize() ([]byte, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(w); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Deserialize converts bytes into a wallet
func Deserialize(data []byte) (*Wallet, error) {
	var wallet Wallet
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// SignMessage signs a message using the wallet's private key
func (w *Wallet) SignMessage(message []byte) []byte {
	return ed25519.Sign(w.PrivateKey, message)
}

// VerifySignature verifies the signature of a given message
func VerifySignature(message, signature []byte, publicKey ed25519.PublicKey) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return ErrInvalidPublicKey
	}
	if !ed25519.Verify(publicKey, message, signature) {
		return ErrInvalidSignature
	}
	return nil
}

// ExportPublicKey exports the public key in hex
func (w *Wallet) ExportPublicKey() string {
	return hex.EncodeToString(w.PublicKey)
}

// ExportPrivateKey exports the private key seed in hexadecimal format (secure only for backups)
func (w *Wallet) ExportPrivateKey() (string, error) {
	if len(w.PrivateKey) != ed25519.PrivateKeySize {
		return "", errors.New("private key not available")
	}
	return hex.EncodeToString(w.PrivateKey.Seed()), nil
}
