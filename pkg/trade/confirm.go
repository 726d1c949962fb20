package trade

import (
	"context"
	"fmt"
	"strings"

	"github.com/inavhq/clawdvault-sdk/internal/solana"
	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

// Status is the confirmation state of a submitted transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	// StatusTimeout means polling stopped before a terminal status was seen.
	// The transaction may still land.
	StatusTimeout Status = "timeout"
)

// Terminal reports whether s is confirmed or failed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Confirmation is one observation of a signature.
type Confirmation struct {
	Status Status
	Slot   int64
	// Err describes the on-chain failure when Status is StatusFailed.
	Err string
}

// Confirmer reports the current state of a signature. It returns
// StatusPending, StatusConfirmed or StatusFailed.
type Confirmer interface {
	Status(ctx context.Context, signature string) (Confirmation, error)
}

// StatusAPI is the launchpad status endpoint. *api.Client satisfies it.
type StatusAPI interface {
	TransactionStatus(ctx context.Context, signature string) (*api.TransactionStatus, error)
}

// APIConfirmer asks the launchpad for the status of a signature.
type APIConfirmer struct {
	api StatusAPI
}

var _ Confirmer = (*APIConfirmer)(nil)

// NewAPIConfirmer creates an APIConfirmer.
func NewAPIConfirmer(a StatusAPI) *APIConfirmer {
	return &APIConfirmer{api: a}
}

// Status implements Confirmer. Unknown server states count as pending.
func (c *APIConfirmer) Status(ctx context.Context, signature string) (Confirmation, error) {
	st, err := c.api.TransactionStatus(ctx, signature)
	if err != nil {
		return Confirmation{}, err
	}
	switch st.Status {
	case api.ConfirmationConfirmed:
		return Confirmation{Status: StatusConfirmed, Slot: st.Slot}, nil
	case api.ConfirmationFailed:
		return Confirmation{Status: StatusFailed, Slot: st.Slot, Err: st.Err}, nil
	}
	return Confirmation{Status: StatusPending}, nil
}

// RPCConfirmer polls getSignatureStatuses on a Solana node directly.
// Call latency is recorded by the RPC client itself.
type RPCConfirmer struct {
	rpc solana.RPCClient
}

var _ Confirmer = (*RPCConfirmer)(nil)

// NewRPCConfirmer creates an RPCConfirmer.
func NewRPCConfirmer(rpc solana.RPCClient) *RPCConfirmer {
	return &RPCConfirmer{rpc: rpc}
}

// Status implements Confirmer. A transaction counts as confirmed at
// "confirmed" commitment or better.
func (c *RPCConfirmer) Status(ctx context.Context, signature string) (Confirmation, error) {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		return Confirmation{}, &api.Error{Kind: api.KindNetwork, Op: "signature_status", Signature: signature, Err: err}
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return Confirmation{Status: StatusPending}, nil
	}

	st := statuses[0]
	switch {
	case st.Failed():
		return Confirmation{Status: StatusFailed, Slot: st.Slot, Err: c.failure(ctx, signature, st)}, nil
	case st.Confirmed():
		return Confirmation{Status: StatusConfirmed, Slot: st.Slot}, nil
	}
	return Confirmation{Status: StatusPending, Slot: st.Slot}, nil
}

// failure describes an on-chain error, with the program logs when the node
// still has the transaction.
func (c *RPCConfirmer) failure(ctx context.Context, signature string, st *solana.SignatureStatus) string {
	msg := fmt.Sprintf("%v", st.Err)
	tx, err := c.rpc.GetTransaction(ctx, signature)
	if err != nil || tx == nil || tx.Meta == nil || len(tx.Meta.LogMessages) == 0 {
		return msg
	}
	logs := tx.Meta.LogMessages
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	return msg + "; logs: " + strings.Join(logs, " | ")
}
