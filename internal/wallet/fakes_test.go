package wallet

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/custody"
	"github.com/rovshanmuradov/evm-custody-wallet/internal/db"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/evmutils"
	"github.com/stretchr/testify/require"
)

const (
	sepolia = uint64(11155111)

	hardhatMnemonic = "test test test test test test test test test test test junk"
	hardhatAddr0    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	hardhatKey0     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	recipient = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	tokenAddr = "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238"
	spender   = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

// fakeNode answers like a synced EIP-1559 node.
type fakeNode struct {
	mu sync.Mutex

	chainID *big.Int
	nonce   uint64
	baseFee *big.Int
	sendErr error
	sent    []*types.Transaction
}

func newFakeNode(chainID uint64) *fakeNode {
	return &fakeNode{chainID: new(big.Int).SetUint64(chainID), baseFee: big.NewInt(10_000_000_000)}
}

func (n *fakeNode) ChainID(context.Context) (*big.Int, error) { return n.chainID, nil }

func (n *fakeNode) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(5e17), nil
}

func (n *fakeNode) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonce, nil
}

func (n *fakeNode) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21_000, nil
}

func (n *fakeNode) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (n *fakeNode) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (n *fakeNode) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: n.baseFee}, nil
}

func (n *fakeNode) SendTransaction(_ context.Context, tx *types.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, tx)
	n.nonce++
	return nil
}

func (n *fakeNode) sentTxs() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

type fakeChains struct {
	nodes map[uint64]*fakeNode
}

func (f *fakeChains) Client(_ context.Context, chainID uint64) (evmutils.Backend, error) {
	n, ok := f.nodes[chainID]
	if !ok {
		return nil, ErrValidation
	}
	return n, nil
}

func (f *fakeChains) Close() {}

// memKeys is an in-memory custody backend.
type memKeys struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemKeys() *memKeys { return &memKeys{keys: make(map[string]string)} }

func (m *memKeys) Create(context.Context) (string, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", err
	}
	id := crypto.PubkeyToAddress(key.PublicKey).Hex()
	keyHex := evmutils.PrivateKeyToHex(key)
	m.mu.Lock()
	m.keys[id] = keyHex
	m.mu.Unlock()
	return id, keyHex, nil
}

func (m *memKeys) Import(_ context.Context, privateKeyHex string) (string, error) {
	key, err := evmutils.PrivateKeyFromHex(privateKeyHex)
	if err != nil {
		return "", custody.ErrInvalidKey
	}
	id := crypto.PubkeyToAddress(key.PublicKey).Hex()
	m.mu.Lock()
	m.keys[id] = evmutils.PrivateKeyToHex(key)
	m.mu.Unlock()
	return id, nil
}

func (m *memKeys) GetPrivateKey(_ context.Context, walletID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[walletID]
	if !ok {
		return "", custody.ErrKeyNotFound
	}
	return k, nil
}

func (m *memKeys) Delete(_ context.Context, walletID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[walletID]
	delete(m.keys, walletID)
	return ok, nil
}

func (m *memKeys) Name() string { return "memory" }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc   *Service
	db    *db.DB
	keys  *memKeys
	node  *fakeNode
	clock *testClock
	cfg   *config.Config
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		StateDir:          t.TempDir(),
		Chains:            map[uint64]config.ChainConfig{sepolia: {RPCURL: "http://127.0.0.1:8545"}},
		DefaultChainID:    sepolia,
		Policy:            config.SpendingPolicy{Mode: config.ModeNotify},
		FeeBufferPermille: evmutils.DefaultFeeBufferPermille,
		RPC:               config.RPCConfig{Timeout: time.Second, Retries: 1},
	}
}

func newHarness(t *testing.T, mutate func(*config.Config), opts ...Option) *harness {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	store, err := db.Open(context.Background(), cfg.StateDir, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		db:    store,
		keys:  newMemKeys(),
		node:  newFakeNode(sepolia),
		clock: &testClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)},
		cfg:   cfg,
	}
	chains := &fakeChains{nodes: map[uint64]*fakeNode{sepolia: h.node}}
	h.svc = New(cfg, store, h.keys, chains, append([]Option{WithClock(h.clock.Now)}, opts...)...)
	return h
}

func (h *harness) createWallet(t *testing.T) *db.Wallet {
	t.Helper()
	w, err := h.svc.CreateWallet(context.Background())
	require.NoError(t, err)
	return w
}
