package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := &Error{Kind: KindSlippageExceeded, Op: "buy", Mint: "Mint1", Amount: "0.05"}

	assert.ErrorIs(t, err, ErrSlippageExceeded)
	assert.NotErrorIs(t, err, ErrInsufficientBalance)
	assert.NotErrorIs(t, err, ErrAuth)
}

func TestError_AuthFamily(t *testing.T) {
	for _, k := range []Kind{KindAuthChallenge, KindSignature, KindAuthRejected} {
		err := &Error{Kind: k, Op: "create_session"}
		assert.ErrorIs(t, err, ErrAuth, k.String())
	}
	assert.NotErrorIs(t, &Error{Kind: KindNetwork}, ErrAuth)
}

func TestError_WrappedChain(t *testing.T) {
	inner := &Error{Kind: KindNetwork, Op: "auth_challenge", Err: errors.New("connection refused")}
	outer := &Error{Kind: KindAuthChallenge, Op: "create_session", Err: inner}
	wrapped := fmt.Errorf("login: %w", outer)

	assert.ErrorIs(t, wrapped, ErrAuthChallenge)
	assert.ErrorIs(t, wrapped, ErrAuth)
	assert.ErrorIs(t, wrapped, ErrNetwork)
	assert.Equal(t, KindAuthChallenge, KindOf(wrapped))
}

func TestError_MessageCarriesContext(t *testing.T) {
	err := &Error{
		Kind:      KindTransactionTimeout,
		Op:        "buy",
		Mint:      "Mint1",
		Amount:    "0.05",
		Signature: "Sig1",
		Message:   "no confirmation after 60s",
	}

	msg := err.Error()
	assert.Contains(t, msg, "buy")
	assert.Contains(t, msg, "mint=Mint1")
	assert.Contains(t, msg, "amount=0.05")
	assert.Contains(t, msg, "signature=Sig1")
	assert.Contains(t, msg, "timed out")
	assert.Contains(t, msg, "no confirmation after 60s")
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		hasMint bool
		want    Kind
	}{
		{"slippage code", 400, CodeSlippageExceeded, true, KindSlippageExceeded},
		{"balance code", 400, CodeInsufficientBalance, true, KindInsufficientBalance},
		{"not found code", 404, CodeTokenNotFound, false, KindUnknownToken},
		{"invalid amount code", 400, CodeInvalidAmount, true, KindInvalidAmount},
		{"unauthorized code", 400, CodeUnauthorized, false, KindAuthRejected},
		{"401", 401, "", false, KindAuthRejected},
		{"404 with mint", 404, "", true, KindUnknownToken},
		{"404 without mint", 404, "", false, KindRequest},
		{"429", 429, "", false, KindNetwork},
		{"502", 502, "", true, KindNetwork},
		{"400", 400, "", false, KindRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kindFor(tt.status, tt.code, tt.hasMint))
		})
	}
}
