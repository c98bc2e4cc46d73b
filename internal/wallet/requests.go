// internal/wallet/requests.go
package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/evmutils"
	"go.uber.org/zap"
)

// TxOptions are common to every request. Empty WalletID and zero ChainID
// select the defaults; empty gas and fee fields are estimated at approval.
type TxOptions struct {
	WalletID string
	ChainID  uint64

	GasLimit             string
	GasPrice             string
	MaxFeePerGas         string
	MaxPriorityFeePerGas string
	Nonce                *uint64
}

type SendRequest struct {
	TxOptions
	To       string
	ValueWei string
}

type ERC20ApproveRequest struct {
	TxOptions
	Token     string
	Spender   string
	AmountWei string
}

type ERC20TransferRequest struct {
	TxOptions
	Token     string
	Recipient string
	AmountWei string
}

type ContractCallRequest struct {
	TxOptions
	Contract string
	ValueWei string
	Data     string
}

func (s *Service) RequestSend(ctx context.Context, req SendRequest) (*db.PendingTx, error) {
	to, err := normalizeAddress("to", req.To)
	if err != nil {
		return nil, err
	}
	value, err := parseWei("valueWei", req.ValueWei)
	if err != nil {
		return nil, err
	}

	return s.request(ctx, req.TxOptions, draft{
		kind:         db.KindSend,
		action:       db.ActionSendRequested,
		to:           to,
		value:        value,
		counterparty: to,
	})
}

func (s *Service) RequestERC20Approve(ctx context.Context, req ERC20ApproveRequest) (*db.PendingTx, error) {
	token, err := normalizeAddress("token", req.Token)
	if err != nil {
		return nil, err
	}
	spender, err := normalizeAddress("spender", req.Spender)
	if err != nil {
		return nil, err
	}
	amount, err := parseWei("amountWei", req.AmountWei)
	if err != nil {
		return nil, err
	}
	data, err := evmutils.PackERC20Approve(spender, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return s.request(ctx, req.TxOptions, draft{
		kind:         db.KindERC20Approve,
		action:       db.ActionERC20ApproveRequested,
		to:           token,
		value:        new(big.Int),
		data:         data,
		counterparty: spender,
		contract:     token,
		spender:      spender.Hex(),
		amount:       amount,
	})
}

func (s *Service) RequestERC20Transfer(ctx context.Context, req ERC20TransferRequest) (*db.PendingTx, error) {
	token, err := normalizeAddress("token", req.Token)
	if err != nil {
		return nil, err
	}
	recipient, err := normalizeAddress("recipient", req.Recipient)
	if err != nil {
		return nil, err
	}
	amount, err := parseWei("amountWei", req.AmountWei)
	if err != nil {
		return nil, err
	}
	data, err := evmutils.PackERC20Transfer(recipient, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return s.request(ctx, req.TxOptions, draft{
		kind:         db.KindERC20Transfer,
		action:       db.ActionERC20TransferRequested,
		to:           token,
		value:        new(big.Int),
		data:         data,
		counterparty: recipient,
		contract:     token,
		recipient:    recipient.Hex(),
		amount:       amount,
	})
}

func (s *Service) RequestContractCall(ctx context.Context, req ContractCallRequest) (*db.PendingTx, error) {
	contract, err := normalizeAddress("contract", req.Contract)
	if err != nil {
		return nil, err
	}
	value, err := parseWei("valueWei", req.ValueWei)
	if err != nil {
		return nil, err
	}
	data, err := evmutils.ParseData(req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrValidation, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: data is required for a contract call", ErrValidation)
	}

	return s.request(ctx, req.TxOptions, draft{
		kind:         db.KindContractCall,
		action:       db.ActionContractCallRequested,
		to:           contract,
		value:        value,
		data:         data,
		counterparty: contract,
		contract:     contract,
	})
}

// draft is a validated request on its way to becoming a pending record.
type draft struct {
	kind   db.TxKind
	action db.AuditAction

	to    common.Address
	value *big.Int
	data  []byte

	counterparty common.Address
	contract     common.Address
	spender      string
	recipient    string
	amount       *big.Int
}

func (s *Service) request(ctx context.Context, opts TxOptions, d draft) (*db.PendingTx, error) {
	fees, err := parseTxOptions(opts)
	if err != nil {
		return nil, err
	}
	w, err := s.resolveWallet(ctx, opts.WalletID)
	if err != nil {
		return nil, err
	}
	chainID, err := s.resolveChain(opts.ChainID)
	if err != nil {
		return nil, err
	}

	spent, err := s.db.Spend.SpentOn(ctx, db.DayKey(s.now()))
	if err != nil {
		return nil, err
	}
	err = s.policy.Check(PolicyInput{
		Kind:         d.kind,
		ChainID:      chainID,
		Counterparty: d.counterparty,
		Contract:     d.contract,
		Value:        d.value,
	}, spent)
	if err != nil {
		logging.Warn("Request rejected by policy",
			zap.String("walletId", w.WalletID),
			zap.String("kind", string(d.kind)),
			zap.Error(err))
		return nil, err
	}

	now := s.now().UTC()
	tx := &db.PendingTx{
		TxID:                 s.newID(),
		Kind:                 d.kind,
		WalletID:             w.WalletID,
		ChainID:              chainID,
		From:                 w.Address,
		To:                   d.to.Hex(),
		ValueWei:             d.value.String(),
		GasLimit:             fees.gasLimit,
		GasPrice:             fees.gasPrice,
		MaxFeePerGas:         fees.maxFee,
		MaxPriorityFeePerGas: fees.maxPriority,
		Nonce:                opts.Nonce,
		Spender:              d.spender,
		Recipient:            d.recipient,
		Status:               db.StatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if len(d.data) > 0 {
		tx.Data = hexutil.Encode(d.data)
	}
	if d.kind == db.KindERC20Approve || d.kind == db.KindERC20Transfer {
		tx.TokenAddress = d.contract.Hex()
		tx.AmountWei = d.amount.String()
	}

	if err := s.db.Pending.Add(ctx, tx); err != nil {
		return nil, err
	}
	s.audit(ctx, &db.AuditEntry{
		Action:       d.action,
		TxID:         tx.TxID,
		WalletID:     tx.WalletID,
		ChainID:      tx.ChainID,
		From:         tx.From,
		To:           tx.To,
		ValueWei:     tx.ValueWei,
		TokenAddress: tx.TokenAddress,
		Spender:      tx.Spender,
		Recipient:    tx.Recipient,
		AmountWei:    tx.AmountWei,
	})
	logging.Info("Transaction queued for approval",
		zap.String("txId", tx.TxID),
		zap.String("kind", string(tx.Kind)),
		zap.Uint64("chainId", tx.ChainID))

	if s.cfg.Policy.Mode == config.ModeAuto {
		return s.ApproveTx(ctx, tx.TxID)
	}
	if s.onPending != nil {
		s.onPending(tx)
	}
	return tx, nil
}

type feeFields struct {
	gasLimit    string
	gasPrice    string
	maxFee      string
	maxPriority string
}

// parseTxOptions validates the gas and fee overrides. A request carries
// either a legacy gas price or both EIP-1559 fields, never a mix.
func parseTxOptions(opts TxOptions) (feeFields, error) {
	var f feeFields

	if s := strings.TrimSpace(opts.GasLimit); s != "" {
		gas, err := strconv.ParseUint(s, 10, 64)
		if err != nil || gas == 0 {
			return f, fmt.Errorf("%w: gasLimit must be a positive integer", ErrValidation)
		}
		f.gasLimit = strconv.FormatUint(gas, 10)
	}

	gasPrice, err := parseOptionalWei("gasPrice", opts.GasPrice)
	if err != nil {
		return f, err
	}
	maxFee, err := parseOptionalWei("maxFeePerGas", opts.MaxFeePerGas)
	if err != nil {
		return f, err
	}
	maxPriority, err := parseOptionalWei("maxPriorityFeePerGas", opts.MaxPriorityFeePerGas)
	if err != nil {
		return f, err
	}

	switch {
	case gasPrice != nil && (maxFee != nil || maxPriority != nil):
		return f, fmt.Errorf("%w: gasPrice cannot be combined with EIP-1559 fee fields", ErrValidation)
	case (maxFee == nil) != (maxPriority == nil):
		return f, fmt.Errorf("%w: maxFeePerGas and maxPriorityFeePerGas must be set together", ErrValidation)
	case maxFee != nil && maxPriority.Cmp(maxFee) > 0:
		return f, fmt.Errorf("%w: maxPriorityFeePerGas exceeds maxFeePerGas", ErrValidation)
	}

	if gasPrice != nil {
		f.gasPrice = gasPrice.String()
	}
	if maxFee != nil {
		f.maxFee = maxFee.String()
		f.maxPriority = maxPriority.String()
	}
	return f, nil
}

func normalizeAddress(field, s string) (common.Address, error) {
	addr, err := evmutils.NormalizeAddress(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %v", ErrValidation, field, err)
	}
	return addr, nil
}

func parseWei(field, s string) (*big.Int, error) {
	v, err := evmutils.ParseWei(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, field, err)
	}
	return v, nil
}

func parseOptionalWei(field, s string) (*big.Int, error) {
	v, err := evmutils.ParseOptionalWei(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValidation, field, err)
	}
	return v, nil
}
