package signer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeypairFile_SolanaCLIFormat(t *testing.T) {
	orig, err := GenerateKeypair()
	require.NoError(t, err)

	ints := make([]int, 0, 64)
	for _, b := range orig.SecretKey() {
		ints = append(ints, int(b))
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig.PublicKey(), loaded.PublicKey())
}

func TestParseKeypair_Base58(t *testing.T) {
	orig, err := GenerateKeypair()
	require.NoError(t, err)

	loaded, err := ParseKeypair([]byte(base58.Encode(orig.SecretKey()) + "\n"))
	require.NoError(t, err)
	assert.Equal(t, orig.PublicKey(), loaded.PublicKey())
}

func TestParseKeypair_Invalid(t *testing.T) {
	_, err := ParseKeypair([]byte("  "))
	assert.Error(t, err)

	_, err = ParseKeypair([]byte("[1,2,3]"))
	assert.Error(t, err)

	_, err = ParseKeypair([]byte("[300]"))
	assert.Error(t, err)

	orig, _ := GenerateKeypair()
	secret := orig.SecretKey()
	secret[40] ^= 0xff
	_, err = NewKeypairSigner(secret)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestKeypairSigner_SignMessage(t *testing.T) {
	s, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("Sign in to ClawdVault\nnonce: abc")
	sig, err := s.SignMessage(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, VerifyMessage(s.PublicKey(), msg, sig))
	assert.False(t, VerifyMessage(s.PublicKey(), []byte("other"), sig))
}

func TestKeypairSigner_CancelledContext(t *testing.T) {
	s, _ := GenerateKeypair()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SignMessage(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParsePublicKey(t *testing.T) {
	s, _ := GenerateKeypair()
	_, err := ParsePublicKey(s.PublicKey())
	assert.NoError(t, err)

	_, err = ParsePublicKey("not-base58-0OIl")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	_, err = ParsePublicKey(base58.Encode([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}
