package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const DefaultServiceName = "evm-custody-wallet"

// KeyringStore keeps keys in the OS secret store (macOS Keychain, Secret
// Service on Linux, Windows Credential Manager) through native bindings.
type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (k *KeyringStore) Name() string { return "keyring" }

func account(id string) string {
	return "wallet-" + id
}

func (k *KeyringStore) Create(ctx context.Context) (string, string, error) {
	keyHex, address, err := generateKey()
	if err != nil {
		return "", "", err
	}
	if err := k.put(address, keyHex); err != nil {
		return "", "", err
	}
	return address, keyHex, nil
}

func (k *KeyringStore) Import(ctx context.Context, privateKeyHex string) (string, error) {
	keyHex, address, err := parseKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	if err := k.put(address, keyHex); err != nil {
		return "", err
	}
	return address, nil
}

func (k *KeyringStore) put(address, keyHex string) error {
	id, err := lookupKey(address)
	if err != nil {
		return err
	}
	if err := keyring.Set(k.service, account(id), keyHex); err != nil {
		logging.Error("Failed to store key in OS keyring", zap.String("walletId", address), zap.Error(err))
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

func (k *KeyringStore) GetPrivateKey(ctx context.Context, walletID string) (string, error) {
	id, err := lookupKey(walletID)
	if err != nil {
		return "", err
	}
	secret, err := keyring.Get(k.service, account(id))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return secret, nil
}

func (k *KeyringStore) Delete(ctx context.Context, walletID string) (bool, error) {
	id, err := lookupKey(walletID)
	if err != nil {
		return false, err
	}
	err = keyring.Delete(k.service, account(id))
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	return true, nil
}
