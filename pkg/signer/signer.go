// Package signer provides wallet signing capabilities: a local keypair
// signer, a wallet-bridge signer and Solana transaction signing helpers.
package signer

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Signer signs challenge messages and Solana transactions for one wallet.
// Implementations are safe for concurrent use.
type Signer interface {
	// PublicKey returns the base58 wallet address.
	PublicKey() string
	// SignMessage returns a 64-byte ed25519 signature over msg.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	// SignTransaction returns tx in wire format with the wallet's signature set.
	SignTransaction(ctx context.Context, tx []byte) ([]byte, error)
}

var (
	// ErrRejected is returned when the wallet owner declines to sign.
	ErrRejected = errors.New("signing rejected by wallet")
	// ErrInvalidPublicKey is returned for keys that are not valid curve points.
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// ParsePublicKey decodes a base58 address and checks it is an ed25519 curve point.
func ParsePublicKey(pubkey string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPublicKey, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: not on curve", ErrInvalidPublicKey)
	}
	return ed25519.PublicKey(raw), nil
}

// VerifyMessage checks sig over msg for the base58 pubkey.
func VerifyMessage(pubkey string, msg, sig []byte) bool {
	pk, err := ParsePublicKey(pubkey)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pk, msg, sig)
}
