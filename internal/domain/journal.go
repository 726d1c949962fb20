package domain

import "github.com/shopspring/decimal"

// JournalStatus is the confirmation state of a submitted transaction.
type JournalStatus string

const (
	JournalPending   JournalStatus = "pending"
	JournalConfirmed JournalStatus = "confirmed"
	JournalFailed    JournalStatus = "failed"
	JournalTimeout   JournalStatus = "timeout"
)

// Final reports whether the status can no longer change. A timeout is not
// final: the transaction may still land and be reconciled later.
func (s JournalStatus) Final() bool {
	return s == JournalConfirmed || s == JournalFailed
}

// Valid reports whether s is a known status.
func (s JournalStatus) Valid() bool {
	switch s {
	case JournalPending, JournalConfirmed, JournalFailed, JournalTimeout:
		return true
	}
	return false
}

// Journal operation kinds.
const (
	OpBuy    = "buy"
	OpSell   = "sell"
	OpCreate = "create"
)

// JournalEntry records one submitted transaction.
// Corresponds to trade_journal table in Postgres.
type JournalEntry struct {
	Signature string // transaction signature, primary key
	Wallet    string // signer public key
	Mint      string
	Op        string // OpBuy | OpSell | OpCreate

	Amount    decimal.Decimal // requested input amount
	MinOutput decimal.Decimal // slippage bound sent with the transaction

	// Realized amounts, nil when the server did not report them.
	SolAmount   *decimal.Decimal
	TokenAmount *decimal.Decimal

	Status      JournalStatus
	SubmittedAt int64  // Unix ms
	ResolvedAt  *int64 // Unix ms, nil while pending
	Error       string // on-chain error for failed transactions
}
