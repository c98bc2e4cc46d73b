// pkg/evmutils/client.go
package evmutils

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/logging"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/utils"
	"go.uber.org/zap"
)

// Backend is the subset of a node's JSON-RPC surface the signer needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type ClientConfig struct {
	Timeout    time.Duration
	Retries    uint
	RetryDelay time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Retries == 0 {
		c.Retries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	return c
}

// Client wraps a Backend with per-call timeouts and retried reads.
// Broadcasts are never retried.
type Client struct {
	backend Backend
	closer  func()
	cfg     ClientConfig
	logger  *zap.Logger
}

// RedactURL keeps only the scheme and host of an RPC endpoint. Providers put
// API keys in the path, query or userinfo.
func RedactURL(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "<redacted>"
	}
	out := u.Scheme + "://" + u.Host
	if u.User != nil || (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		out += "/<redacted>"
	}
	return out
}

func Dial(ctx context.Context, rpcURL string, cfg ClientConfig) (*Client, error) {
	redacted := RedactURL(rpcURL)
	logger := logging.With(zap.String("rpc", redacted))
	logger.Info("Creating new EVM client")

	cfg = cfg.withDefaults()
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	ec, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		logger.Error("Failed to connect", zap.Error(err))
		return nil, fmt.Errorf("failed to connect to %s: %w", redacted, err)
	}

	return &Client{backend: ec, closer: ec.Close, cfg: cfg, logger: logger}, nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, cfg ClientConfig) *Client {
	return &Client{backend: backend, cfg: cfg.withDefaults(), logger: logging.GetLogger()}
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) read(ctx context.Context, op string, f func(ctx context.Context) error) error {
	err := utils.Retry(ctx, c.cfg.Retries, c.cfg.RetryDelay, c.logger.With(zap.String("op", op)), func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return f(callCtx)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.read(ctx, "eth_chainId", func(ctx context.Context) (err error) {
		id, err = c.backend.ChainID(ctx)
		return err
	})
	return id, err
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var bal *big.Int
	err := c.read(ctx, "eth_getBalance", func(ctx context.Context) (err error) {
		bal, err = c.backend.BalanceAt(ctx, account, blockNumber)
		return err
	})
	return bal, err
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.read(ctx, "eth_getTransactionCount", func(ctx context.Context) (err error) {
		nonce, err = c.backend.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.read(ctx, "eth_estimateGas", func(ctx context.Context) (err error) {
		gas, err = c.backend.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.read(ctx, "eth_gasPrice", func(ctx context.Context) (err error) {
		price, err = c.backend.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// SuggestGasTipCap is not retried: a node without EIP-1559 support fails it
// deterministically and the builder falls back to legacy pricing.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.backend.SuggestGasTipCap(callCtx)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var h *types.Header
	err := c.read(ctx, "eth_getBlockByNumber", func(ctx context.Context) (err error) {
		h, err = c.backend.HeaderByNumber(ctx, number)
		return err
	})
	return h, err
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	logger := c.logger.With(zap.String("txHash", tx.Hash().Hex()), zap.Uint64("nonce", tx.Nonce()))
	logger.Info("Broadcasting transaction")

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.backend.SendTransaction(callCtx, tx); err != nil {
		logger.Error("Failed to broadcast transaction", zap.Error(err))
		return fmt.Errorf("eth_sendRawTransaction: %w", err)
	}
	logger.Info("Transaction broadcast")
	return nil
}
