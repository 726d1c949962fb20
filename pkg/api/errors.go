package api

import (
	"errors"
	"strings"
)

// Kind classifies an Error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuth // family marker, matched by every auth kind below
	KindAuthChallenge
	KindSignature
	KindAuthRejected
	KindInvalidAmount
	KindUnknownToken
	KindSlippageExceeded
	KindInsufficientBalance
	KindTransactionTimeout
	KindTransactionFailed
	KindStreamConnection
	KindRequest
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown error",
	KindNetwork:             "network error",
	KindAuth:                "auth error",
	KindAuthChallenge:       "auth challenge failed",
	KindSignature:           "signature failed",
	KindAuthRejected:        "auth rejected",
	KindInvalidAmount:       "invalid amount",
	KindUnknownToken:        "unknown token",
	KindSlippageExceeded:    "slippage exceeded",
	KindInsufficientBalance: "insufficient balance",
	KindTransactionTimeout:  "transaction confirmation timed out",
	KindTransactionFailed:   "transaction failed",
	KindStreamConnection:    "stream connection error",
	KindRequest:             "request rejected",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// IsAuth reports whether k belongs to the auth family.
func (k Kind) IsAuth() bool {
	switch k {
	case KindAuth, KindAuthChallenge, KindSignature, KindAuthRejected:
		return true
	}
	return false
}

// Sentinels for errors.Is. Only Kind is compared.
var (
	ErrNetwork             = &Error{Kind: KindNetwork}
	ErrAuth                = &Error{Kind: KindAuth}
	ErrAuthChallenge       = &Error{Kind: KindAuthChallenge}
	ErrSignature           = &Error{Kind: KindSignature}
	ErrAuthRejected        = &Error{Kind: KindAuthRejected}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrUnknownToken        = &Error{Kind: KindUnknownToken}
	ErrSlippageExceeded    = &Error{Kind: KindSlippageExceeded}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrTransactionTimeout  = &Error{Kind: KindTransactionTimeout}
	ErrTransactionFailed   = &Error{Kind: KindTransactionFailed}
	ErrStreamConnection    = &Error{Kind: KindStreamConnection}
	ErrRequest             = &Error{Kind: KindRequest}
)

// Error is the error type returned by every SDK operation.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "buy" or "create_session".
	Op   string
	Mint string
	// Amount is the requested amount in decimal notation, if any.
	Amount    string
	Signature string
	// Status is the HTTP status code, 0 when no response was received.
	Status int
	// Code is the server error code, e.g. SLIPPAGE_EXCEEDED.
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("clawdvault")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Mint != "" {
		b.WriteString(" mint=")
		b.WriteString(e.Mint)
	}
	if e.Amount != "" {
		b.WriteString(" amount=")
		b.WriteString(e.Amount)
	}
	if e.Signature != "" {
		b.WriteString(" signature=")
		b.WriteString(e.Signature)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind. ErrAuth matches the whole auth family.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == KindAuth {
		return e.Kind.IsAuth()
	}
	return t.Kind == e.Kind && t.Op == "" && t.Mint == "" && t.Signature == ""
}

// NewError returns an Error of the given kind wrapping err.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// AsError extracts the outermost *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// Server error codes.
const (
	CodeSlippageExceeded    = "SLIPPAGE_EXCEEDED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeTokenNotFound       = "TOKEN_NOT_FOUND"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeUnauthorized        = "UNAUTHORIZED"
)

// kindFor maps an HTTP error response onto the taxonomy.
func kindFor(status int, code string, hasMint bool) Kind {
	switch code {
	case CodeSlippageExceeded:
		return KindSlippageExceeded
	case CodeInsufficientBalance:
		return KindInsufficientBalance
	case CodeTokenNotFound:
		return KindUnknownToken
	case CodeInvalidAmount:
		return KindInvalidAmount
	case CodeUnauthorized:
		return KindAuthRejected
	}
	switch {
	case status == 401 || status == 403:
		return KindAuthRejected
	case status == 404 && hasMint:
		return KindUnknownToken
	case status == 408 || status == 429 || status >= 500:
		return KindNetwork
	case status >= 400:
		return KindRequest
	}
	return KindNetwork
}
