package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoKey is returned by a KeySource with nothing configured.
var ErrNoKey = errors.New("no signing key configured")

// KeySource loads the account's signing key.
type KeySource interface {
	Load() (*ecdsa.PrivateKey, error)
}

// PrivateKey is a hex-encoded secp256k1 key, with or without 0x.
type PrivateKey string

// Load parses the key.
func (k PrivateKey) Load() (*ecdsa.PrivateKey, error) {
	s := strings.TrimPrefix(strings.TrimSpace(string(k)), "0x")
	if s == "" {
		return nil, ErrNoKey
	}
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return key, nil
}

// KeystoreFile is an encrypted JSON key file (Web3 Secret Storage).
type KeystoreFile struct {
	Path     string
	Password string
}

// Load decrypts the key file.
func (k KeystoreFile) Load() (*ecdsa.PrivateKey, error) {
	if k.Path == "" {
		return nil, ErrNoKey
	}
	data, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}
	key, err := keystore.DecryptKey(data, k.Password)
	if err != nil {
		return nil, fmt.Errorf("decrypting keystore %s: %w", k.Path, err)
	}
	return key.PrivateKey, nil
}

// KeyFromConfig picks a key source from the configured values: a keystore
// path wins over a raw private key. It returns nil when neither is set,
// which makes the session read-only.
func KeyFromConfig(keystorePath, password, privateKey string) KeySource {
	switch {
	case keystorePath != "":
		return KeystoreFile{Path: keystorePath, Password: password}
	case privateKey != "":
		return PrivateKey(privateKey)
	default:
		return nil
	}
}
