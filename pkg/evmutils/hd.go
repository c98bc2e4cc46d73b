package evmutils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"
)

// GenerateMnemonic returns a fresh 24-word BIP-39 phrase.
func GenerateMnemonic() (string, error) {
	logger := logging.GetLogger()
	logger.Info("Generating new seed phrase")

	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		logger.Error("Failed to generate entropy", zap.Error(err))
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		logger.Error("Failed to generate mnemonic", zap.Error(err))
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	words := strings.Fields(mnemonic)
	if len(words) != 24 {
		return "", fmt.Errorf("generated mnemonic has invalid length: expected 24 words, got %d", len(words))
	}
	return mnemonic, nil
}

// DeriveKey derives the account key at m/44'/60'/0'/0/index.
func DeriveKey(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(CleanInput(mnemonic)), " ")
	if mnemonic == "" {
		return nil, errors.New("mnemonic cannot be empty")
	}
	if index >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("account index %d out of range", index)
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		index,
	}
	for _, p := range path {
		key, err = key.Derive(p)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}
	return priv.ToECDSA(), nil
}
