// internal/wallet/approval.go
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/evmutils"
	"go.uber.org/zap"
)

// ApproveTx signs and broadcasts a pending transaction. A transaction leaves
// this call either sent or failed; a second approval of the same id returns
// ErrAlreadyProcessed instead of broadcasting again.
func (s *Service) ApproveTx(ctx context.Context, txID string) (*db.PendingTx, error) {
	tx, err := s.GetPendingTx(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != db.StatusPending {
		return tx, fmt.Errorf("%w: %s is %s", ErrAlreadyProcessed, txID, tx.Status)
	}

	logger := logging.With(zap.String("txId", txID), zap.Uint64("chainId", tx.ChainID))

	if age := s.now().Sub(tx.CreatedAt); age > PendingTTL {
		expired, err := s.transition(ctx, txID, db.StatusPending, db.StatusFailed, db.TxUpdate{
			Error: fmt.Sprintf("expired: pending for %s, limit %s", age.Round(time.Second), PendingTTL),
		})
		if err != nil {
			return expired, err
		}
		s.audit(ctx, auditFor(db.ActionSendExpired, expired))
		logger.Warn("Pending transaction expired", zap.Duration("age", age))
		return expired, fmt.Errorf("%w: %s", ErrExpired, txID)
	}

	approved, err := s.transition(ctx, txID, db.StatusPending, db.StatusApproved, db.TxUpdate{})
	if err != nil {
		return approved, err
	}

	// Once approved the record must reach sent or failed, whatever the caller
	// does with its context.
	return s.execute(context.WithoutCancel(ctx), approved, logger)
}

func (s *Service) execute(ctx context.Context, tx *db.PendingTx, logger *zap.Logger) (*db.PendingTx, error) {
	value, err := evmutils.ParseWei(tx.ValueWei)
	if err != nil {
		return s.fail(ctx, tx, ErrValidation, err)
	}

	today := db.DayKey(s.now())
	if value.Sign() > 0 {
		s.spendMu.Lock()
		defer s.spendMu.Unlock()

		spent, err := s.db.Spend.SpentOn(ctx, today)
		if err != nil {
			return s.fail(ctx, tx, ErrBroadcast, err)
		}
		if err := s.policy.CheckDaily(value, spent); err != nil {
			return s.fail(ctx, tx, ErrPolicyViolation, err)
		}
	}

	keyHex, err := s.keys.GetPrivateKey(ctx, tx.WalletID)
	if err != nil {
		return s.fail(ctx, tx, ErrKeyAccess, err)
	}
	key, err := evmutils.PrivateKeyFromHex(keyHex)
	if err != nil {
		return s.fail(ctx, tx, ErrKeyAccess, errors.New("stored key is malformed"))
	}
	if crypto.PubkeyToAddress(key.PublicKey) != common.HexToAddress(tx.From) {
		return s.fail(ctx, tx, ErrKeyAccess, errors.New("stored key does not match wallet address"))
	}

	req, err := buildRequest(tx, value)
	if err != nil {
		return s.fail(ctx, tx, ErrValidation, err)
	}
	req.PrivateKey = key
	req.FeeBufferPermille = s.cfg.FeeBufferPermille

	client, err := s.chains.Client(ctx, tx.ChainID)
	if err != nil {
		return s.fail(ctx, tx, ErrBroadcast, err)
	}
	signed, err := evmutils.BuildAndSign(ctx, client, req)
	if err != nil {
		return s.fail(ctx, tx, ErrBroadcast, err)
	}
	if err := client.SendTransaction(ctx, signed.Tx); err != nil {
		return s.fail(ctx, tx, ErrBroadcast, err)
	}

	upd := db.TxUpdate{
		TxHash:   signed.Hash.Hex(),
		Nonce:    &signed.Nonce,
		GasLimit: strconv.FormatUint(signed.GasLimit, 10),
	}
	switch f := signed.Fee.(type) {
	case evmutils.LegacyFee:
		upd.GasPrice = f.GasPrice.String()
	case evmutils.DynamicFee:
		upd.MaxFeePerGas = f.MaxFeePerGas.String()
		upd.MaxPriorityFeePerGas = f.MaxPriorityFeePerGas.String()
	}

	sent, err := s.db.Pending.Transition(ctx, tx.TxID, db.StatusApproved, db.StatusSent, upd)
	if err != nil {
		logger.Error("Transaction broadcast but status update failed",
			zap.String("txHash", upd.TxHash), zap.Error(err))
		return nil, fmt.Errorf("transaction %s broadcast as %s but could not be recorded: %w", tx.TxID, upd.TxHash, err)
	}

	if value.Sign() > 0 {
		if _, err := s.db.Spend.AddSpend(ctx, today, value); err != nil {
			logger.Error("Failed to record daily spend", zap.String("valueWei", value.String()), zap.Error(err))
		}
	}

	s.audit(ctx, auditFor(db.ActionSendApproved, sent))
	logger.Info("Transaction sent", zap.String("txHash", sent.TxHash), zap.Uint64("nonce", signed.Nonce))
	return sent, nil
}

// fail moves an approved transaction to failed, records why and returns
// cause wrapped in kind.
func (s *Service) fail(ctx context.Context, tx *db.PendingTx, kind, cause error) (*db.PendingTx, error) {
	failed, err := s.db.Pending.Transition(ctx, tx.TxID, db.StatusApproved, db.StatusFailed, db.TxUpdate{
		Error: cause.Error(),
	})
	if err != nil {
		logging.Error("Failed to mark transaction failed", zap.String("txId", tx.TxID), zap.Error(err))
		failed = tx
	}

	s.audit(ctx, auditFor(db.ActionSendFailed, failed))
	logging.Error("Transaction failed", zap.String("txId", tx.TxID), zap.Error(cause))
	return failed, fmt.Errorf("%w: %v", kind, cause)
}

// RejectTx is only valid for a pending transaction and cannot be undone.
func (s *Service) RejectTx(ctx context.Context, txID string) (*db.PendingTx, error) {
	rejected, err := s.transition(ctx, txID, db.StatusPending, db.StatusRejected, db.TxUpdate{})
	if err != nil {
		return rejected, err
	}
	s.audit(ctx, auditFor(db.ActionSendRejected, rejected))
	logging.Info("Transaction rejected", zap.String("txId", txID))
	return rejected, nil
}

// transition maps store errors onto service errors.
func (s *Service) transition(ctx context.Context, txID string, from, to db.TxStatus, upd db.TxUpdate) (*db.PendingTx, error) {
	tx, err := s.db.Pending.Transition(ctx, txID, from, to, upd)
	switch {
	case err == nil:
		return tx, nil
	case errors.Is(err, db.ErrNotFound):
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txID)
	case errors.Is(err, db.ErrStaleStatus):
		return tx, fmt.Errorf("%w: %s", ErrAlreadyProcessed, txID)
	default:
		return nil, err
	}
}

func buildRequest(tx *db.PendingTx, value *big.Int) (evmutils.BuildRequest, error) {
	req := evmutils.BuildRequest{
		ChainID: new(big.Int).SetUint64(tx.ChainID),
		To:      common.HexToAddress(tx.To),
		Value:   value,
		Nonce:   tx.Nonce,
	}

	data, err := evmutils.ParseData(tx.Data)
	if err != nil {
		return req, err
	}
	req.Data = data

	if tx.GasLimit != "" {
		if req.GasLimit, err = strconv.ParseUint(tx.GasLimit, 10, 64); err != nil {
			return req, fmt.Errorf("invalid stored gas limit %q", tx.GasLimit)
		}
	}

	switch {
	case tx.GasPrice != "":
		price, err := evmutils.ParseWei(tx.GasPrice)
		if err != nil {
			return req, err
		}
		req.Fee = evmutils.LegacyFee{GasPrice: price}
	case tx.MaxFeePerGas != "":
		maxFee, err := evmutils.ParseWei(tx.MaxFeePerGas)
		if err != nil {
			return req, err
		}
		tip, err := evmutils.ParseWei(tx.MaxPriorityFeePerGas)
		if err != nil {
			return req, err
		}
		req.Fee = evmutils.DynamicFee{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}
	}
	return req, nil
}

func auditFor(action db.AuditAction, tx *db.PendingTx) *db.AuditEntry {
	return &db.AuditEntry{
		Action:       action,
		TxID:         tx.TxID,
		WalletID:     tx.WalletID,
		ChainID:      tx.ChainID,
		From:         tx.From,
		To:           tx.To,
		ValueWei:     tx.ValueWei,
		TxHash:       tx.TxHash,
		Error:        tx.Error,
		TokenAddress: tx.TokenAddress,
		Spender:      tx.Spender,
		Recipient:    tx.Recipient,
		AmountWei:    tx.AmountWei,
	}
}
