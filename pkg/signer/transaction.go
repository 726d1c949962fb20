package signer

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const signatureLen = ed25519.SignatureSize

var (
	// ErrMalformedTransaction is returned for bytes that are not a Solana wire transaction.
	ErrMalformedTransaction = errors.New("malformed transaction")
	// ErrNotRequiredSigner is returned when the key is not among the required signers.
	ErrNotRequiredSigner = errors.New("key is not a required signer")
)

// Transaction is a decoded Solana wire transaction, legacy or versioned.
type Transaction struct {
	*solana.Transaction

	message []byte
}

// ParseTransaction decodes raw and checks that its signature slots match
// the message header.
func ParseTransaction(raw []byte) (*Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 {
		return nil, fmt.Errorf("%w: no required signers", ErrMalformedTransaction)
	}
	if len(tx.Signatures) != required {
		return nil, fmt.Errorf("%w: header requires %d signatures, found %d slots",
			ErrMalformedTransaction, required, len(tx.Signatures))
	}
	if required > len(tx.Message.AccountKeys) {
		return nil, fmt.Errorf("%w: more signers than accounts", ErrMalformedTransaction)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: encode message: %v", ErrMalformedTransaction, err)
	}
	return &Transaction{Transaction: tx, message: msg}, nil
}

// MessageBytes returns the serialized message the signatures cover.
func (tx *Transaction) MessageBytes() []byte { return tx.message }

// RequiredSigners returns the account keys that must sign, in slot order.
func (tx *Transaction) RequiredSigners() solana.PublicKeySlice {
	return tx.Message.AccountKeys[:tx.Message.Header.NumRequiredSignatures]
}

// SignerIndex returns the signature slot of pubkey.
func (tx *Transaction) SignerIndex(pubkey solana.PublicKey) (int, error) {
	for i, key := range tx.RequiredSigners() {
		if key.Equals(pubkey) {
			return i, nil
		}
	}
	return -1, ErrNotRequiredSigner
}

// Verify reports whether every required slot carries a valid signature.
func (tx *Transaction) Verify() bool {
	return tx.VerifySignatures() == nil
}
