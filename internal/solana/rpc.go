// Package solana is a minimal Solana JSON-RPC client used for trade
// confirmation and network health.
package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface.
type RPCClient interface {
	// GetSignatureStatuses returns one entry per signature; nil when the
	// cluster has not seen it.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetTransaction retrieves a confirmed transaction. Nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
