// internal/custody/custody.go
package custody

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/evmutils"
)

var (
	ErrKeyNotFound       = errors.New("private key not found")
	ErrCustodyDisabled   = errors.New("key custody is disabled")
	ErrInvalidIdentifier = errors.New("invalid wallet identifier")
	ErrInvalidKey        = errors.New("invalid private key")
)

// KeyStore holds private keys by wallet id. Wallet ids are checksummed
// addresses; keys travel as 0x-prefixed hex and never leave this interface
// except towards the signer.
type KeyStore interface {
	Create(ctx context.Context) (walletID string, privateKeyHex string, err error)
	Import(ctx context.Context, privateKeyHex string) (walletID string, err error)
	GetPrivateKey(ctx context.Context, walletID string) (string, error)
	Delete(ctx context.Context, walletID string) (bool, error)
	Name() string
}

// New builds the backend selected in cfg.
func New(cfg *config.Config) (KeyStore, error) {
	switch cfg.Custody.Backend {
	case config.CustodyKeyring:
		return NewKeyringStore(DefaultServiceName), nil
	case config.CustodyFile:
		return NewFileStore(filepath.Join(cfg.StateDir, "keys"), cfg.Custody.EncryptionKey)
	case config.CustodyDisabled:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported custody backend %q", cfg.Custody.Backend)
	}
}

// lookupKey validates walletID and returns its lowercased form, the only
// shape ever used to build a secret name or a file path.
func lookupKey(walletID string) (string, error) {
	if !evmutils.IsHexAddress(walletID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, walletID)
	}
	return strings.ToLower(walletID), nil
}

// parseKey validates privateKeyHex and returns the normalized hex and the
// checksummed address it controls.
func parseKey(privateKeyHex string) (string, string, error) {
	s := strings.TrimSpace(privateKeyHex)
	if !evmutils.IsHexPrivateKey(s) {
		return "", "", ErrInvalidKey
	}
	key, err := evmutils.PrivateKeyFromHex(s)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return evmutils.PrivateKeyToHex(key), crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// generateKey draws a fresh secp256k1 key from crypto/rand.
func generateKey() (string, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	return evmutils.PrivateKeyToHex(key), crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
