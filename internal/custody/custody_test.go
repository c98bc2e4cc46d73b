package custody

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rovshanmuradov/evm-custody-wallet/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

const (
	hardhatKey0  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddr0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

var testEncryptionKey = hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func newFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "keys")
	fs, err := NewFileStore(dir, testEncryptionKey)
	require.NoError(t, err)
	return fs, dir
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, dir := newFileStore(t)

	id, keyHex, err := fs.Create(ctx)
	require.NoError(t, err)
	assert.Len(t, keyHex, 66)

	got, err := fs.GetPrivateKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	info, err := os.Stat(filepath.Join(dir, strings.ToLower(id)+".json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(filepath.Join(dir, strings.ToLower(id)+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), strings.TrimPrefix(keyHex, "0x"), "key must not be stored in clear")
}

func TestFileStoreImport(t *testing.T) {
	ctx := context.Background()
	fs, _ := newFileStore(t)

	id, err := fs.Import(ctx, "  "+strings.TrimPrefix(hardhatKey0, "0x")+"\n")
	require.NoError(t, err)
	assert.Equal(t, hardhatAddr0, id)

	got, err := fs.GetPrivateKey(ctx, strings.ToLower(hardhatAddr0))
	require.NoError(t, err)
	assert.Equal(t, hardhatKey0, got)

	_, err = fs.Import(ctx, "0x1234")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFileStoreWrongKeyFails(t *testing.T) {
	ctx := context.Background()
	fs, dir := newFileStore(t)
	_, err := fs.Import(ctx, hardhatKey0)
	require.NoError(t, err)

	other, err := NewFileStore(dir, hex.EncodeToString([]byte("ffffffffffffffffffffffffffffffff")))
	require.NoError(t, err)
	_, err = other.GetPrivateKey(ctx, hardhatAddr0)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrKeyNotFound)
}

func TestFileStoreMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	fs, _ := newFileStore(t)

	_, err := fs.GetPrivateKey(ctx, hardhatAddr0)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	deleted, err := fs.Delete(ctx, hardhatAddr0)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = fs.Import(ctx, hardhatKey0)
	require.NoError(t, err)
	deleted, err = fs.Delete(ctx, hardhatAddr0)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = fs.GetPrivateKey(ctx, hardhatAddr0)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestIdentifierValidation(t *testing.T) {
	ctx := context.Background()
	fs, _ := newFileStore(t)

	for _, id := range []string{"", "../../etc/passwd", "0x1234", "wallet-1"} {
		_, err := fs.GetPrivateKey(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, id)
		_, err = fs.Delete(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, id)
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	ks := NewKeyringStore(DefaultServiceName)

	id, err := ks.Import(ctx, hardhatKey0)
	require.NoError(t, err)
	assert.Equal(t, hardhatAddr0, id)

	secret, err := keyring.Get(DefaultServiceName, "wallet-"+strings.ToLower(hardhatAddr0))
	require.NoError(t, err)
	assert.Equal(t, hardhatKey0, secret)

	got, err := ks.GetPrivateKey(ctx, hardhatAddr0)
	require.NoError(t, err)
	assert.Equal(t, hardhatKey0, got)

	deleted, err := ks.Delete(ctx, hardhatAddr0)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = ks.GetPrivateKey(ctx, hardhatAddr0)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	var ks KeyStore = Disabled{}

	_, _, err := ks.Create(ctx)
	assert.ErrorIs(t, err, ErrCustodyDisabled)
	_, err = ks.Import(ctx, hardhatKey0)
	assert.ErrorIs(t, err, ErrCustodyDisabled)
	_, err = ks.GetPrivateKey(ctx, hardhatAddr0)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, "disabled", ks.Name())
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := &config.Config{StateDir: t.TempDir()}

	cfg.Custody.Backend = config.CustodyDisabled
	ks, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "disabled", ks.Name())

	cfg.Custody = config.CustodyConfig{Backend: config.CustodyFile, EncryptionKey: testEncryptionKey}
	ks, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "file", ks.Name())

	cfg.Custody = config.CustodyConfig{Backend: config.CustodyFile, EncryptionKey: "short"}
	_, err = New(cfg)
	assert.Error(t, err)

	cfg.Custody = config.CustodyConfig{Backend: config.CustodyKeyring}
	ks, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "keyring", ks.Name())
}
