package signer

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTx encodes an unsigned transfer-like transaction with the given
// required signers followed by one read-only program account.
func buildTx(versioned bool, signers ...solana.PublicKey) []byte {
	program := solana.PublicKeyFromBytes(append([]byte{7}, make([]byte, 31)...))

	keys := append(solana.PublicKeySlice{}, signers...)
	keys = append(keys, program)

	tx := &solana.Transaction{
		Signatures: make([]solana.Signature, len(signers)),
		Message: solana.Message{
			Header: solana.MessageHeader{
				NumRequiredSignatures:       uint8(len(signers)),
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys: keys,
			Instructions: []solana.CompiledInstruction{{
				ProgramIDIndex: uint16(len(signers)),
				Accounts:       []uint16{0},
				Data:           solana.Base58{1, 2, 3},
			}},
		},
	}
	if versioned {
		tx.Message.SetVersion(solana.MessageVersionV0)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return raw
}

func TestKeypairSigner_SignTransactionLegacy(t *testing.T) {
	s, err := GenerateKeypair()
	require.NoError(t, err)

	raw := buildTx(false, s.pub)
	signed, err := s.SignTransaction(context.Background(), raw)
	require.NoError(t, err)

	tx, err := ParseTransaction(signed)
	require.NoError(t, err)
	assert.False(t, tx.Message.IsVersioned())
	assert.True(t, tx.Verify())

	// input is not mutated
	orig, err := ParseTransaction(raw)
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{}, orig.Signatures[0])
	assert.Equal(t, orig.MessageBytes(), tx.MessageBytes())
}

func TestKeypairSigner_SignTransactionV0SecondSigner(t *testing.T) {
	payer, err := GenerateKeypair()
	require.NoError(t, err)
	mint, err := GenerateKeypair()
	require.NoError(t, err)

	raw := buildTx(true, payer.pub, mint.pub)

	partial, err := mint.SignTransaction(context.Background(), raw)
	require.NoError(t, err)
	half, err := ParseTransaction(partial)
	require.NoError(t, err)
	assert.False(t, half.Verify())

	full, err := payer.SignTransaction(context.Background(), partial)
	require.NoError(t, err)

	tx, err := ParseTransaction(full)
	require.NoError(t, err)
	assert.True(t, tx.Message.IsVersioned())
	assert.Len(t, tx.RequiredSigners(), 2)
	assert.True(t, tx.Verify())

	idx, err := tx.SignerIndex(mint.pub)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, half.Signatures[1], tx.Signatures[1])
}

func TestKeypairSigner_SignTransactionNotASigner(t *testing.T) {
	a, _ := GenerateKeypair()
	b, _ := GenerateKeypair()

	_, err := b.SignTransaction(context.Background(), buildTx(false, a.pub))
	assert.ErrorIs(t, err, ErrNotRequiredSigner)
}

func TestParseTransaction_Malformed(t *testing.T) {
	s, _ := GenerateKeypair()
	valid := buildTx(false, s.pub)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"zero signatures", []byte{0}},
		{"truncated signatures", valid[:40]},
		{"no message", valid[:1+signatureLen]},
		{"truncated keys", valid[:1+signatureLen+3+1+10]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTransaction(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedTransaction)
		})
	}
}
