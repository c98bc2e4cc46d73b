package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/rovshanmuradov/evm-custody-wallet/pkg/evmutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainRegistry(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Chains[1] = cfg.Chains[sepolia]

	dials := 0
	r := NewChainRegistry(cfg)
	r.dial = func(_ context.Context, _ string, ccfg evmutils.ClientConfig) (*evmutils.Client, error) {
		dials++
		return evmutils.NewClient(newFakeNode(sepolia), ccfg), nil
	}
	defer r.Close()

	c1, err := r.Client(ctx, sepolia)
	require.NoError(t, err)
	c2, err := r.Client(ctx, sepolia)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, 1, dials)

	_, err = r.Client(ctx, 1)
	assert.ErrorContains(t, err, "reports chain id 11155111")

	_, err = r.Client(ctx, 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChainRegistrySlowDialDoesNotBlockOtherChains(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Chains[1] = config.ChainConfig{RPCURL: "http://slow.example"}

	release := make(chan struct{})
	started := make(chan struct{})
	r := NewChainRegistry(cfg)
	r.dial = func(_ context.Context, rpcURL string, ccfg evmutils.ClientConfig) (*evmutils.Client, error) {
		if rpcURL == "http://slow.example" {
			close(started)
			<-release
			return evmutils.NewClient(newFakeNode(1), ccfg), nil
		}
		return evmutils.NewClient(newFakeNode(sepolia), ccfg), nil
	}
	defer r.Close()

	slow := make(chan error, 1)
	go func() {
		_, err := r.Client(ctx, 1)
		slow <- err
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := r.Client(ctx, sepolia)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lookup for another chain waited on a pending dial")
	}

	close(release)
	require.NoError(t, <-slow)
}
