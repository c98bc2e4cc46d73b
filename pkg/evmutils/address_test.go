package evmutils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checksummed = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"checksummed", checksummed, true},
		{"lowercase", "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", true},
		{"uppercase body", "0x70997970C51812DC3A010C7D01B50E0D17DC79C8", true},
		{"upper prefix", "0X70997970c51812dc3a010c7d01b50e0d17dc79c8", true},
		{"backticks", "`" + checksummed + "`", true},
		{"quotes", "\"" + checksummed + "\"", true},
		{"zero width", "\u200b" + checksummed + "\ufeff", true},
		{"whitespace", "  " + checksummed + "\n", true},
		{"bad checksum", "0x70997970c51812dc3A010C7d01b50e0d17dc79C8", false},
		{"short", "0x1234", false},
		{"no prefix", "70997970c51812dc3a010c7d01b50e0d17dc79c8", false},
		{"non hex", "0x70997970c51812dc3a010c7d01b50e0d17dc79zz", false},
		{"injection", "0x70997970c51812dc3a010c7d01b50e0d17dc79c8;ls", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := NormalizeAddress(tt.input)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, checksummed, addr.Hex())
		})
	}
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("2000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", v.String())

	v, err = ParseWei("0")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Sign())

	huge := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	v, err = ParseWei(huge)
	require.NoError(t, err)
	assert.Equal(t, huge, v.String())

	// 2^256 and 2^256+5 would wrap when ABI-encoded.
	overflow := "115792089237316195423570985008687907853269984665640564039457584007913129639936"
	overflowPlus5 := "115792089237316195423570985008687907853269984665640564039457584007913129639941"
	for _, bad := range []string{"", "-1", "1.5", "1e18", "0x10", "abc", "+1", overflow, overflowPlus5} {
		_, err := ParseWei(bad)
		assert.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
}

func TestParseData(t *testing.T) {
	d, err := ParseData("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseData("0xa9059cbb")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, d)

	for _, bad := range []string{"a9059cbb", "0xabc", "0xzz"} {
		_, err := ParseData(bad)
		assert.ErrorIs(t, err, ErrInvalidData, bad)
	}
}

func TestERC20CalldataRoundTrip(t *testing.T) {
	amounts := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil),
	}
	addrs := []common.Address{
		common.HexToAddress(checksummed),
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
	}

	for _, a := range addrs {
		for _, amt := range amounts {
			data, err := PackERC20Transfer(a, amt)
			require.NoError(t, err)
			assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, data[:4])
			assert.Len(t, data, 4+64)

			method, gotAddr, gotAmt, err := UnpackERC20Call(data)
			require.NoError(t, err)
			assert.Equal(t, "transfer", method)
			assert.Equal(t, a, gotAddr)
			assert.Equal(t, 0, amt.Cmp(gotAmt))

			data, err = PackERC20Approve(a, amt)
			require.NoError(t, err)
			assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, data[:4])

			method, gotAddr, gotAmt, err = UnpackERC20Call(data)
			require.NoError(t, err)
			assert.Equal(t, "approve", method)
			assert.Equal(t, a, gotAddr)
			assert.Equal(t, 0, amt.Cmp(gotAmt))
		}
	}
}

func TestPackERC20RejectsOutOfRangeAmount(t *testing.T) {
	to := common.HexToAddress(checksummed)
	tooBig := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(5))

	_, err := PackERC20Transfer(to, tooBig)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = PackERC20Approve(to, tooBig)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = PackERC20Transfer(to, big.NewInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
