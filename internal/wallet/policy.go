// internal/wallet/policy.go
package wallet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
)

// PolicyInput describes one request as the policy sees it. Counterparty is
// the party that ends up receiving value or rights: the native recipient,
// the token recipient, the spender, or the called contract. Contract is the
// token or contract address for non-native requests.
type PolicyInput struct {
	Kind         db.TxKind
	ChainID      uint64
	Counterparty common.Address
	Contract     common.Address
	Value        *big.Int
}

// Policy is the stateless spending and contract gate. Address sets are keyed
// by lowercase hex.
type Policy struct {
	limitPerTx *big.Int
	dailyLimit *big.Int

	allowedChains     map[uint64]bool
	allowedRecipients map[string]bool

	interactWithUnverified bool
	verifiedTokens         map[string]bool
	verifiedContracts      map[string]bool
}

func NewPolicy(cfg *config.Config) *Policy {
	p := &Policy{
		limitPerTx:             cfg.Policy.LimitPerTx,
		dailyLimit:             cfg.Policy.DailyLimit,
		interactWithUnverified: cfg.InteractWithUnverifiedContracts,
		verifiedTokens:         addressSet(cfg.VerifiedTokenAddresses),
		verifiedContracts:      addressSet(cfg.VerifiedContractAddresses),
	}
	if len(cfg.Policy.AllowedChains) > 0 {
		p.allowedChains = make(map[uint64]bool, len(cfg.Policy.AllowedChains))
		for _, id := range cfg.Policy.AllowedChains {
			p.allowedChains[id] = true
		}
	}
	if len(cfg.Policy.AllowedRecipients) > 0 {
		p.allowedRecipients = addressSet(cfg.Policy.AllowedRecipients)
	}
	return p
}

func addressSet(addrs []string) map[string]bool {
	set := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		set[strings.ToLower(a)] = true
	}
	return set
}

func addrKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// Check runs every configured rule against in. spentToday is the ledger
// total for the current UTC day.
func (p *Policy) Check(in PolicyInput, spentToday *big.Int) error {
	if p.allowedChains != nil && !p.allowedChains[in.ChainID] {
		return fmt.Errorf("%w: chain %d is not allowed", ErrPolicyViolation, in.ChainID)
	}
	if p.allowedRecipients != nil && !p.allowedRecipients[addrKey(in.Counterparty)] {
		return fmt.Errorf("%w: %s is not an allowed recipient", ErrPolicyViolation, in.Counterparty.Hex())
	}
	if err := p.checkContract(in); err != nil {
		return err
	}

	value := in.Value
	if value == nil {
		value = new(big.Int)
	}
	if p.limitPerTx != nil && value.Cmp(p.limitPerTx) > 0 {
		return fmt.Errorf("%w: value %s exceeds per-transaction limit %s", ErrPolicyViolation, value, p.limitPerTx)
	}
	return p.CheckDaily(value, spentToday)
}

// CheckDaily fails if value on top of spentToday would exceed the daily limit.
func (p *Policy) CheckDaily(value, spentToday *big.Int) error {
	if p.dailyLimit == nil || value == nil {
		return nil
	}
	projected := new(big.Int).Set(value)
	if spentToday != nil {
		projected.Add(projected, spentToday)
	}
	if projected.Cmp(p.dailyLimit) > 0 {
		return fmt.Errorf("%w: daily limit %s would be exceeded (spent %s, requested %s)",
			ErrPolicyViolation, p.dailyLimit, orZero(spentToday), value)
	}
	return nil
}

func (p *Policy) checkContract(in PolicyInput) error {
	if p.interactWithUnverified {
		return nil
	}
	c := addrKey(in.Contract)
	switch in.Kind {
	case db.KindERC20Approve, db.KindERC20Transfer:
		if !p.verifiedTokens[c] {
			return fmt.Errorf("%w: token %s is not verified", ErrPolicyViolation, in.Contract.Hex())
		}
	case db.KindContractCall:
		if !p.verifiedTokens[c] && !p.verifiedContracts[c] {
			return fmt.Errorf("%w: contract %s is not verified", ErrPolicyViolation, in.Contract.Hex())
		}
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
