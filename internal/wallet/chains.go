package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/evmutils"
	"go.uber.org/zap"
)

// ChainProvider hands out an RPC backend per chain id.
type ChainProvider interface {
	Client(ctx context.Context, chainID uint64) (evmutils.Backend, error)
	Close()
}

type dialFunc func(ctx context.Context, rpcURL string, cfg evmutils.ClientConfig) (*evmutils.Client, error)

// ChainRegistry dials each configured chain on first use and keeps the
// client for the life of the registry.
type ChainRegistry struct {
	mu      sync.Mutex
	chains  map[uint64]config.ChainConfig
	cfg     evmutils.ClientConfig
	clients map[uint64]*evmutils.Client
	dial    dialFunc
}

func NewChainRegistry(cfg *config.Config) *ChainRegistry {
	logging.Info("Chain registry configured", zap.Uint64s("chains", cfg.ChainIDs()))
	return &ChainRegistry{
		chains: cfg.Chains,
		cfg: evmutils.ClientConfig{
			Timeout: cfg.RPC.Timeout,
			Retries: cfg.RPC.Retries,
		},
		clients: make(map[uint64]*evmutils.Client),
		dial:    evmutils.Dial,
	}
}

// Client returns the cached client for chainID, dialing it on first use. The
// dial runs without the registry lock; if two callers race, the first stored
// client wins and the other is closed.
func (r *ChainRegistry) Client(ctx context.Context, chainID uint64) (evmutils.Backend, error) {
	r.mu.Lock()
	if c, ok := r.clients[chainID]; ok {
		r.mu.Unlock()
		return c, nil
	}
	chain, ok := r.chains[chainID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: chain %d is not configured", ErrValidation, chainID)
	}

	c, err := r.connect(ctx, chainID, chain)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[chainID]; ok {
		c.Close()
		return existing, nil
	}
	logging.Info("Connected to chain", zap.Uint64("chainId", chainID))
	r.clients[chainID] = c
	return c, nil
}

func (r *ChainRegistry) connect(ctx context.Context, chainID uint64, chain config.ChainConfig) (*evmutils.Client, error) {
	c, err := r.dial(ctx, chain.RPCURL, r.cfg)
	if err != nil {
		return nil, err
	}
	remote, err := c.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to verify chain %d: %w", chainID, err)
	}
	if remote.Cmp(new(big.Int).SetUint64(chainID)) != 0 {
		c.Close()
		return nil, fmt.Errorf("rpc for chain %d reports chain id %s", chainID, remote)
	}
	return c, nil
}

func (r *ChainRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
