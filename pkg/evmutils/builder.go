// pkg/evmutils/builder.go
package evmutils

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"go.uber.org/zap"
)

const (
	// GasLimitBuffer is added on top of eth_estimateGas.
	GasLimitBuffer uint64 = 10_000

	// DefaultFeeBufferPermille multiplies fee estimates by 1.2.
	DefaultFeeBufferPermille uint64 = 1200
)

// FeeQuote is either LegacyFee or DynamicFee.
type FeeQuote interface {
	feeQuote()
}

type LegacyFee struct {
	GasPrice *big.Int
}

type DynamicFee struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func (LegacyFee) feeQuote()  {}
func (DynamicFee) feeQuote() {}

type BuildRequest struct {
	PrivateKey *ecdsa.PrivateKey
	ChainID    *big.Int
	To         common.Address
	Value      *big.Int
	Data       []byte

	// Optional overrides. Zero GasLimit, nil Nonce and nil Fee are estimated.
	GasLimit uint64
	Nonce    *uint64
	Fee      FeeQuote

	FeeBufferPermille uint64
}

type SignedTx struct {
	Tx       *types.Transaction
	RawHex   string
	Hash     common.Hash
	From     common.Address
	Nonce    uint64
	GasLimit uint64
	Fee      FeeQuote
}

// BuildAndSign fills in nonce, gas and fees from the backend where the request
// leaves them open, signs and serializes the transaction. It keeps no state.
func BuildAndSign(ctx context.Context, backend Backend, req BuildRequest) (*SignedTx, error) {
	if req.PrivateKey == nil {
		return nil, errors.New("private key is required")
	}
	if req.ChainID == nil || req.ChainID.Sign() <= 0 {
		return nil, errors.New("chain id is required")
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value", ErrInvalidAmount)
	}
	permille := req.FeeBufferPermille
	if permille == 0 {
		permille = DefaultFeeBufferPermille
	}

	from := crypto.PubkeyToAddress(req.PrivateKey.PublicKey)
	to := req.To
	logger := logging.With(
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("chainId", req.ChainID.String()),
	)

	var nonce uint64
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else {
		n, err := backend.PendingNonceAt(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("failed to get nonce: %w", err)
		}
		nonce = n
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		est, err := backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  from,
			To:    &to,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gasLimit = est + GasLimitBuffer
	}

	fee := req.Fee
	if fee == nil {
		quote, err := EstimateFees(ctx, backend, permille)
		if err != nil {
			return nil, err
		}
		fee = quote
	}

	var txData types.TxData
	switch f := fee.(type) {
	case DynamicFee:
		if f.MaxFeePerGas == nil || f.MaxPriorityFeePerGas == nil {
			return nil, errors.New("dynamic fee requires maxFeePerGas and maxPriorityFeePerGas")
		}
		if f.MaxPriorityFeePerGas.Cmp(f.MaxFeePerGas) > 0 {
			return nil, errors.New("maxPriorityFeePerGas exceeds maxFeePerGas")
		}
		txData = &types.DynamicFeeTx{
			ChainID:   req.ChainID,
			Nonce:     nonce,
			GasTipCap: f.MaxPriorityFeePerGas,
			GasFeeCap: f.MaxFeePerGas,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}
	case LegacyFee:
		if f.GasPrice == nil {
			return nil, errors.New("legacy fee requires gasPrice")
		}
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: f.GasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		}
	default:
		return nil, fmt.Errorf("unsupported fee quote %T", fee)
	}

	signed, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(req.ChainID), req.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	logger.Debug("Transaction signed",
		zap.String("txHash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gasLimit", gasLimit))

	return &SignedTx{
		Tx:       signed,
		RawHex:   hexutil.Encode(raw),
		Hash:     signed.Hash(),
		From:     from,
		Nonce:    nonce,
		GasLimit: gasLimit,
		Fee:      fee,
	}, nil
}

// EstimateFees prefers EIP-1559 pricing and falls back to a legacy gas price
// when the node has no base fee or no tip oracle. Both paths are scaled by
// permille/1000.
func EstimateFees(ctx context.Context, backend Backend, permille uint64) (FeeQuote, error) {
	if permille == 0 {
		permille = DefaultFeeBufferPermille
	}

	head, err := backend.HeaderByNumber(ctx, nil)
	if err == nil && head != nil && head.BaseFee != nil {
		tip, tipErr := backend.SuggestGasTipCap(ctx)
		if tipErr == nil {
			maxFee := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
			maxFee.Add(maxFee, tip)
			return DynamicFee{
				MaxFeePerGas:         ApplyBuffer(maxFee, permille),
				MaxPriorityFeePerGas: ApplyBuffer(tip, permille),
			}, nil
		}
		err = tipErr
	}
	logging.Debug("EIP-1559 fee estimation unavailable, using legacy gas price", zap.Error(err))

	price, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return LegacyFee{GasPrice: ApplyBuffer(price, permille)}, nil
}

// ApplyBuffer returns v * permille / 1000.
func ApplyBuffer(v *big.Int, permille uint64) *big.Int {
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(permille))
	return out.Quo(out, big.NewInt(1000))
}

// PrivateKeyFromHex parses a 32-byte hex key with or without 0x.
func PrivateKeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	if !IsHexPrivateKey(s) {
		return nil, errors.New("invalid private key format")
	}
	key, err := crypto.HexToECDSA(s[len(s)-64:])
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// PrivateKeyToHex renders the key as 0x-prefixed hex.
func PrivateKeyToHex(key *ecdsa.PrivateKey) string {
	return hexutil.Encode(crypto.FromECDSA(key))
}
