// internal/custody/file.go
package custody

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/utils"
	"go.uber.org/zap"
)

const fileRecordVersion = 1

// fileRecord is the on-disk form of one encrypted key. The lowercased
// address is bound in as additional data, so a record renamed to another
// wallet's path fails to decrypt.
type fileRecord struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Nonce      string `json:"nonce"`
	Tag        string `json:"tag"`
	Ciphertext string `json:"ciphertext"`
}

// FileStore keeps one AES-256-GCM encrypted key file per wallet under dir.
type FileStore struct {
	dir string
	key []byte
}

func NewFileStore(dir, encryptionKey string) (*FileStore, error) {
	key, err := utils.ParseKey(encryptionKey)
	if err != nil {
		logging.Error("Invalid custody encryption key", zap.Error(err))
		return nil, err
	}
	return &FileStore{dir: dir, key: key}, nil
}

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

func (f *FileStore) Create(ctx context.Context) (string, string, error) {
	keyHex, address, err := generateKey()
	if err != nil {
		return "", "", err
	}
	if err := f.write(address, keyHex); err != nil {
		return "", "", err
	}
	return address, keyHex, nil
}

func (f *FileStore) Import(ctx context.Context, privateKeyHex string) (string, error) {
	keyHex, address, err := parseKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	if err := f.write(address, keyHex); err != nil {
		return "", err
	}
	return address, nil
}

func (f *FileStore) write(address, keyHex string) error {
	id, err := lookupKey(address)
	if err != nil {
		return err
	}

	sealed, err := utils.Seal(f.key, []byte(keyHex), []byte(id))
	if err != nil {
		logging.Error("Error encrypting private key", zap.String("walletId", address), zap.Error(err))
		return fmt.Errorf("failed to encrypt key: %w", err)
	}
	data, err := json.Marshal(fileRecord{
		Version:    fileRecordVersion,
		Address:    address,
		Nonce:      hex.EncodeToString(sealed.Nonce),
		Tag:        hex.EncodeToString(sealed.Tag),
		Ciphertext: hex.EncodeToString(sealed.Ciphertext),
	})
	if err != nil {
		return fmt.Errorf("failed to encode key record: %w", err)
	}

	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict key file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close key file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(id)); err != nil {
		return fmt.Errorf("failed to store key file: %w", err)
	}
	return nil
}

func (f *FileStore) GetPrivateKey(ctx context.Context, walletID string) (string, error) {
	id, err := lookupKey(walletID)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("corrupt key file for %s: %w", walletID, err)
	}
	if rec.Version != fileRecordVersion {
		return "", fmt.Errorf("unsupported key file version %d", rec.Version)
	}

	sealed := &utils.Sealed{}
	if sealed.Nonce, err = hex.DecodeString(rec.Nonce); err != nil {
		return "", fmt.Errorf("corrupt key file nonce: %w", err)
	}
	if sealed.Tag, err = hex.DecodeString(rec.Tag); err != nil {
		return "", fmt.Errorf("corrupt key file tag: %w", err)
	}
	if sealed.Ciphertext, err = hex.DecodeString(rec.Ciphertext); err != nil {
		return "", fmt.Errorf("corrupt key file ciphertext: %w", err)
	}

	plaintext, err := utils.Open(f.key, sealed, []byte(id))
	if err != nil {
		logging.Error("Error decrypting private key", zap.String("walletId", walletID), zap.Error(err))
		return "", fmt.Errorf("failed to decrypt key: %w", err)
	}
	return string(plaintext), nil
}

func (f *FileStore) Delete(ctx context.Context, walletID string) (bool, error) {
	id, err := lookupKey(walletID)
	if err != nil {
		return false, err
	}
	err = os.Remove(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete key file: %w", err)
	}
	return true, nil
}
