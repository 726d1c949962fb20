package signer

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// KeypairSigner signs with an in-memory ed25519 key.
type KeypairSigner struct {
	priv solana.PrivateKey
	pub  solana.PublicKey
}

var _ Signer = (*KeypairSigner)(nil)

// NewKeypairSigner creates a signer from a 64-byte secret key
// (seed followed by public key) or a 32-byte seed.
func NewKeypairSigner(secret []byte) (*KeypairSigner, error) {
	var priv ed25519.PrivateKey
	switch len(secret) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(secret)
	case ed25519.PrivateKeySize:
		priv = ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
		if !bytes.Equal(priv[ed25519.SeedSize:], secret[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidPublicKey)
		}
	default:
		return nil, fmt.Errorf("secret key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(secret))
	}

	key := solana.PrivateKey(priv)
	pub := key.PublicKey()
	if _, err := ParsePublicKey(pub.String()); err != nil {
		return nil, err
	}
	return &KeypairSigner{priv: key, pub: pub}, nil
}

// ParseKeypair accepts a Solana CLI keypair (JSON byte array) or a base58 secret key.
func ParseKeypair(data []byte) (*KeypairSigner, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty keypair")
	}

	if trimmed[0] == '[' {
		var secret []byte
		if err := json.Unmarshal(trimmed, &secret); err != nil {
			return nil, fmt.Errorf("decode keypair json: %w", err)
		}
		return NewKeypairSigner(secret)
	}

	key, err := solana.PrivateKeyFromBase58(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("decode base58 secret: %w", err)
	}
	return NewKeypairSigner(key)
}

// LoadKeypairFile reads a keypair file written by solana-keygen.
func LoadKeypairFile(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", path, err)
	}
	return NewKeypairSigner(key)
}

// GenerateKeypair creates a signer with a fresh random key.
func GenerateKeypair() (*KeypairSigner, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return NewKeypairSigner(key)
}

// PublicKey returns the base58 wallet address.
func (s *KeypairSigner) PublicKey() string { return s.pub.String() }

// SignMessage signs msg.
func (s *KeypairSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := s.priv.Sign(msg)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

// SignTransaction sets the wallet's signature on the wire transaction tx.
// Signature slots of other signers are left as they are.
func (s *KeypairSigner) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := ParseTransaction(tx)
	if err != nil {
		return nil, err
	}
	if _, err := parsed.SignerIndex(s.pub); err != nil {
		return nil, err
	}
	_, err = parsed.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.pub) {
			return &s.priv
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return parsed.MarshalBinary()
}

// SecretKey returns the 64-byte secret key.
func (s *KeypairSigner) SecretKey() []byte {
	out := make([]byte, len(s.priv))
	copy(out, s.priv)
	return out
}
