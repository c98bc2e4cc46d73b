package evmutils

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sepolia = big.NewInt(11155111)

func TestBuildAndSignDynamicFee(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	fb := &fakeBackend{
		nonce:   0,
		gas:     21000,
		baseFee: big.NewInt(10),
		tip:     big.NewInt(2),
	}
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	out, err := BuildAndSign(context.Background(), fb, BuildRequest{
		PrivateKey: key,
		ChainID:    sepolia,
		To:         to,
		Value:      big.NewInt(1),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(0), out.Nonce)
	assert.Equal(t, uint64(21000)+GasLimitBuffer, out.GasLimit)

	fee, ok := out.Fee.(DynamicFee)
	require.True(t, ok)
	// (2*10 + 2) * 1.2 = 26, 2 * 1.2 = 2
	assert.Equal(t, "26", fee.MaxFeePerGas.String())
	assert.Equal(t, "2", fee.MaxPriorityFeePerGas.String())

	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(hexutil.MustDecode(out.RawHex)))
	assert.Equal(t, uint8(types.DynamicFeeTxType), decoded.Type())
	assert.Equal(t, out.Hash, decoded.Hash())

	sender, err := types.Sender(types.LatestSignerForChainID(sepolia), &decoded)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
	assert.Equal(t, to, *decoded.To())
	assert.Equal(t, int64(1), decoded.Value().Int64())
}

func TestBuildAndSignFallsBackToLegacy(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	fb := &fakeBackend{
		nonce:    5,
		gas:      50000,
		gasPrice: big.NewInt(100),
		tipErr:   errors.New("method not found"),
		baseFee:  big.NewInt(1),
	}

	out, err := BuildAndSign(context.Background(), fb, BuildRequest{
		PrivateKey: key,
		ChainID:    sepolia,
		To:         common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
	})
	require.NoError(t, err)

	fee, ok := out.Fee.(LegacyFee)
	require.True(t, ok)
	assert.Equal(t, "120", fee.GasPrice.String())
	assert.Equal(t, uint64(5), out.Nonce)
	assert.Equal(t, uint8(types.LegacyTxType), out.Tx.Type())
}

func TestBuildAndSignLegacyWhenNoBaseFee(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	fb := &fakeBackend{gas: 21000, gasPrice: big.NewInt(1000), tip: big.NewInt(1)}

	out, err := BuildAndSign(context.Background(), fb, BuildRequest{
		PrivateKey:        key,
		ChainID:           sepolia,
		To:                common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		FeeBufferPermille: 1500,
	})
	require.NoError(t, err)
	fee, ok := out.Fee.(LegacyFee)
	require.True(t, ok)
	assert.Equal(t, "1500", fee.GasPrice.String())
}

func TestBuildAndSignUsesOverrides(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	fb := &fakeBackend{nonce: 99, gas: 1}

	nonce := uint64(3)
	out, err := BuildAndSign(context.Background(), fb, BuildRequest{
		PrivateKey: key,
		ChainID:    sepolia,
		To:         common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		GasLimit:   60000,
		Nonce:      &nonce,
		Fee:        LegacyFee{GasPrice: big.NewInt(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), out.Nonce)
	assert.Equal(t, uint64(60000), out.GasLimit)
	assert.Equal(t, 0, fb.nonceCalls)
	assert.Equal(t, int64(7), out.Tx.GasPrice().Int64())
}

func TestBuildAndSignRejectsInconsistentDynamicFee(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = BuildAndSign(context.Background(), &fakeBackend{gas: 21000}, BuildRequest{
		PrivateKey: key,
		ChainID:    sepolia,
		To:         common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Fee:        DynamicFee{MaxFeePerGas: big.NewInt(1), MaxPriorityFeePerGas: big.NewInt(2)},
	})
	assert.Error(t, err)
}

func TestPrivateKeyHexRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	s := PrivateKeyToHex(key)
	back, err := PrivateKeyFromHex(s)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(back.PublicKey))

	back, err = PrivateKeyFromHex(s[2:])
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(back.PublicKey))

	_, err = PrivateKeyFromHex("0x1234; rm -rf /")
	assert.Error(t, err)
}
