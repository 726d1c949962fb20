package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(url string) *Transport {
	return NewTransport(url, WithRetryDelay(time.Millisecond, 5*time.Millisecond), WithTimeout(2*time.Second))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestTransport_HeadersAndDecode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, err := uuid.Parse(r.Header.Get(HeaderRequestID))
		assert.NoError(t, err)
		assert.Equal(t, "/trade/quote", r.URL.Path)
		assert.Equal(t, "Mint1", r.URL.Query().Get("mint"))

		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"type":         "buy",
			"mint":         "Mint1",
			"input":        "0.05",
			"output":       "1700000",
			"price_impact": "0.004",
		})
	}))
	defer server.Close()

	tr := newTestTransport(server.URL)
	var q Quote
	err := tr.Do(context.Background(), Request{
		Op:     "quote",
		Method: http.MethodGet,
		Path:   PathQuote,
		Query:  map[string]string{"mint": "Mint1", "empty": ""},
		Token:  "tok-1",
	}, &q)
	require.NoError(t, err)

	assert.True(t, q.Output.Equal(decimal.NewFromInt(1700000)))
	assert.True(t, q.PriceImpact.Equal(decimal.RequireFromString("0.004")))
}

func TestTransport_ErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "price moved beyond tolerance",
			"code":    CodeSlippageExceeded,
		})
	}))
	defer server.Close()

	tr := newTestTransport(server.URL)
	err := tr.Do(context.Background(), Request{
		Op:     "execute_buy",
		Method: http.MethodPost,
		Path:   PathTradeExecute,
		Body:   map[string]string{"mint": "Mint1"},
		Mint:   "Mint1",
		Amount: "0.05",
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	apiErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Mint1", apiErr.Mint)
	assert.Contains(t, err.Error(), "price moved beyond tolerance")
	assert.Contains(t, err.Error(), "amount=0.05")
}

func TestTransport_RetriesIdempotentGet(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": "upstream"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"price": "142.5"})
	}))
	defer server.Close()

	tr := newTestTransport(server.URL)
	var out SolPrice
	err := tr.Do(context.Background(), Request{Op: "sol_price", Method: http.MethodGet, Path: PathSolPrice}, &out)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, out.Price.Equal(decimal.RequireFromString("142.5")))
}

func TestTransport_NeverRetriesPost(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": "upstream"})
	}))
	defer server.Close()

	tr := newTestTransport(server.URL)
	err := tr.Do(context.Background(), Request{Op: "execute_buy", Method: http.MethodPost, Path: PathTradeExecute, Body: struct{}{}}, nil)

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransport_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "session expired", "code": CodeUnauthorized})
	}))
	defer server.Close()

	tr := newTestTransport(server.URL)
	err := tr.Do(context.Background(), Request{Op: "get_balance", Method: http.MethodGet, Path: PathBalance, Token: "stale"}, nil)

	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestTransport_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>gateway</html>"))
	}))
	defer server.Close()

	tr := newTestTransport(server.URL)
	var out NetworkStatus
	err := tr.Do(context.Background(), Request{Op: "network", Method: http.MethodGet, Path: PathNetwork}, &out)

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "malformed response")
}

func TestTransport_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	tr := NewTransport(url, WithMaxRetries(0), WithTimeout(time.Second))
	err := tr.Do(context.Background(), Request{Op: "network", Method: http.MethodGet, Path: PathNetwork}, nil)

	assert.ErrorIs(t, err, ErrNetwork)
}
