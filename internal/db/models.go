// internal/db/models.go
package db

import (
	"time"
)

type TxStatus string

const (
	StatusPending  TxStatus = "pending"
	StatusApproved TxStatus = "approved"
	StatusSent     TxStatus = "sent"
	StatusFailed   TxStatus = "failed"
	StatusRejected TxStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s TxStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusRejected
}

var allowedTransitions = map[TxStatus][]TxStatus{
	StatusPending:  {StatusApproved, StatusRejected, StatusFailed},
	StatusApproved: {StatusSent, StatusFailed},
}

func canTransition(from, to TxStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type TxKind string

const (
	KindSend          TxKind = "send"
	KindERC20Approve  TxKind = "erc20_approve"
	KindERC20Transfer TxKind = "erc20_transfer"
	KindContractCall  TxKind = "contract_call"
)

// Wallet holds public metadata only. WalletID and Address are the same
// checksummed address.
type Wallet struct {
	WalletID  string    `gorm:"column:wallet_id;primaryKey;size:42" json:"walletId"`
	Address   string    `gorm:"column:address;uniqueIndex;size:42;not null" json:"address"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

func (Wallet) TableName() string { return "wallets" }

type WalletState struct {
	DefaultWalletID string            `json:"defaultWalletId,omitempty"`
	Wallets         map[string]Wallet `json:"wallets"`
}

type Metadata struct {
	Key   string `gorm:"column:meta_key;primaryKey;size:64"`
	Value string `gorm:"column:meta_value;not null"`
}

func (Metadata) TableName() string { return "metadata" }

// PendingTx is a transaction request and its approval outcome. Amounts are
// base-10 wei strings; empty optional fields mean "estimate at approval".
type PendingTx struct {
	TxID     string `gorm:"column:tx_id;primaryKey;size:36" json:"txId"`
	Kind     TxKind `gorm:"column:kind;size:32;not null" json:"kind"`
	WalletID string `gorm:"column:wallet_id;index;size:42;not null" json:"walletId"`
	ChainID  uint64 `gorm:"column:chain_id;index;not null" json:"chainId"`
	From     string `gorm:"column:from_address;size:42;not null" json:"from"`
	To       string `gorm:"column:to_address;size:42;not null" json:"to"`
	ValueWei string `gorm:"column:value_wei;not null" json:"valueWei"`
	Data     string `gorm:"column:data" json:"data,omitempty"`

	GasLimit             string  `gorm:"column:gas_limit" json:"gasLimit,omitempty"`
	GasPrice             string  `gorm:"column:gas_price" json:"gasPrice,omitempty"`
	MaxFeePerGas         string  `gorm:"column:max_fee_per_gas" json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string  `gorm:"column:max_priority_fee_per_gas" json:"maxPriorityFeePerGas,omitempty"`
	Nonce                *uint64 `gorm:"column:nonce" json:"nonce,omitempty"`

	TokenAddress string `gorm:"column:token_address;size:42" json:"tokenAddress,omitempty"`
	Spender      string `gorm:"column:spender;size:42" json:"spender,omitempty"`
	Recipient    string `gorm:"column:recipient;size:42" json:"recipient,omitempty"`
	AmountWei    string `gorm:"column:amount_wei" json:"amountWei,omitempty"`

	Status    TxStatus  `gorm:"column:status;index;size:16;not null" json:"status"`
	TxHash    string    `gorm:"column:tx_hash;size:66" json:"txHash,omitempty"`
	Error     string    `gorm:"column:error" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;index;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (PendingTx) TableName() string { return "pending_transactions" }

// TxUpdate carries the optional fields written alongside a status change.
type TxUpdate struct {
	TxHash               string
	Error                string
	Nonce                *uint64
	GasLimit             string
	GasPrice             string
	MaxFeePerGas         string
	MaxPriorityFeePerGas string
}

type DailySpend struct {
	Date      string    `gorm:"column:day;primaryKey;size:10"`
	TotalWei  string    `gorm:"column:total_wei;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (DailySpend) TableName() string { return "daily_spend" }

type AuditAction string

const (
	ActionWalletCreated          AuditAction = "wallet_created"
	ActionWalletImported         AuditAction = "wallet_imported"
	ActionWalletRecovered        AuditAction = "wallet_recovered"
	ActionWalletDefaultSet       AuditAction = "wallet_default_set"
	ActionSendRequested          AuditAction = "send_requested"
	ActionERC20ApproveRequested  AuditAction = "erc20_approve_requested"
	ActionERC20TransferRequested AuditAction = "erc20_transfer_requested"
	ActionContractCallRequested  AuditAction = "contract_call_requested"
	ActionSendApproved           AuditAction = "send_approved"
	ActionSendFailed             AuditAction = "send_failed"
	ActionSendRejected           AuditAction = "send_rejected"
	ActionSendExpired            AuditAction = "send_expired"
)

type AuditEntry struct {
	ID           uint64      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	At           time.Time   `gorm:"column:at;index;not null" json:"at"`
	Action       AuditAction `gorm:"column:action;index;size:64;not null" json:"action"`
	TxID         string      `gorm:"column:tx_id;index;size:36" json:"txId,omitempty"`
	WalletID     string      `gorm:"column:wallet_id;index;size:42" json:"walletId,omitempty"`
	ChainID      uint64      `gorm:"column:chain_id;index" json:"chainId,omitempty"`
	From         string      `gorm:"column:from_address;size:42" json:"from,omitempty"`
	To           string      `gorm:"column:to_address;size:42" json:"to,omitempty"`
	ValueWei     string      `gorm:"column:value_wei" json:"valueWei,omitempty"`
	TxHash       string      `gorm:"column:tx_hash;size:66" json:"txHash,omitempty"`
	Error        string      `gorm:"column:error" json:"error,omitempty"`
	TokenAddress string      `gorm:"column:token_address;size:42" json:"tokenAddress,omitempty"`
	Spender      string      `gorm:"column:spender;size:42" json:"spender,omitempty"`
	Recipient    string      `gorm:"column:recipient;size:42" json:"recipient,omitempty"`
	AmountWei    string      `gorm:"column:amount_wei" json:"amountWei,omitempty"`
}

func (AuditEntry) TableName() string { return "audit_entries" }

type AuditFilter struct {
	WalletID string
	ChainID  uint64
	Action   AuditAction
	Limit    int
}
