// pkg/evmutils/erc20.go
package evmutils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{
		"constant": false,
		"inputs": [
			{"name": "_spender", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

var parsedERC20 abi.ABI

func init() {
	var err error
	parsedERC20, err = abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("evmutils: parse erc20 abi: %v", err))
	}
}

// abi.Pack wraps uint256 arguments modulo 2^256 instead of failing.
func checkUint256(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return fmt.Errorf("%w: amount out of uint256 range", ErrInvalidAmount)
	}
	return nil
}

// PackERC20Approve returns calldata for approve(spender, amount).
func PackERC20Approve(spender common.Address, amount *big.Int) ([]byte, error) {
	if err := checkUint256(amount); err != nil {
		return nil, err
	}
	data, err := parsedERC20.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return data, nil
}

// PackERC20Transfer returns calldata for transfer(to, amount).
func PackERC20Transfer(to common.Address, amount *big.Int) ([]byte, error) {
	if err := checkUint256(amount); err != nil {
		return nil, err
	}
	data, err := parsedERC20.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}
	return data, nil
}

// UnpackERC20Call decodes approve/transfer calldata back into its method name,
// address argument and amount.
func UnpackERC20Call(data []byte) (string, common.Address, *big.Int, error) {
	if len(data) < 4 {
		return "", common.Address{}, nil, fmt.Errorf("%w: too short for a selector", ErrInvalidData)
	}
	method, err := parsedERC20.MethodById(data[:4])
	if err != nil {
		return "", common.Address{}, nil, fmt.Errorf("unknown selector: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", common.Address{}, nil, fmt.Errorf("failed to unpack %s: %w", method.Name, err)
	}
	if len(args) != 2 {
		return "", common.Address{}, nil, fmt.Errorf("unexpected argument count %d", len(args))
	}
	addr, ok := args[0].(common.Address)
	if !ok {
		return "", common.Address{}, nil, fmt.Errorf("unexpected address argument type %T", args[0])
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return "", common.Address{}, nil, fmt.Errorf("unexpected amount argument type %T", args[1])
	}
	return method.Name, addr, amount, nil
}
