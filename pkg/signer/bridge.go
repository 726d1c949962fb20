package signer

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mr-tron/base58"
)

// DefaultBridgeTimeout bounds one bridge call, including the time a human
// takes to approve the request in the wallet.
const DefaultBridgeTimeout = 2 * time.Minute

// BridgeSigner delegates signing to a browser wallet reached through a
// local HTTP bridge. The wallet owner approves each request.
type BridgeSigner struct {
	client *resty.Client
	pubkey string
}

var _ Signer = (*BridgeSigner)(nil)

type bridgeKey struct {
	PublicKey string `json:"publicKey"`
}

type bridgeMessage struct {
	Message string `json:"message"`
}

type bridgeSignature struct {
	Signature string `json:"signature"`
}

type bridgeTransaction struct {
	Transaction string `json:"transaction"`
}

type bridgeError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewBridgeSigner connects to the bridge at baseURL and fetches the wallet address.
func NewBridgeSigner(ctx context.Context, baseURL string) (*BridgeSigner, error) {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(DefaultBridgeTimeout).
		SetHeader("Accept", "application/json")

	s := &BridgeSigner{client: client}

	var key bridgeKey
	if err := s.call(ctx, http.MethodGet, "/publicKey", nil, &key); err != nil {
		return nil, err
	}
	if _, err := ParsePublicKey(key.PublicKey); err != nil {
		return nil, err
	}
	s.pubkey = key.PublicKey
	return s, nil
}

// PublicKey returns the wallet address reported by the bridge.
func (s *BridgeSigner) PublicKey() string { return s.pubkey }

// SignMessage asks the wallet to sign msg.
func (s *BridgeSigner) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	var out bridgeSignature
	body := bridgeMessage{Message: base64.StdEncoding.EncodeToString(msg)}
	if err := s.call(ctx, http.MethodPost, "/signMessage", body, &out); err != nil {
		return nil, err
	}
	sig, err := base58.Decode(out.Signature)
	if err != nil || len(sig) != signatureLen {
		return nil, fmt.Errorf("bridge returned invalid signature")
	}
	if !VerifyMessage(s.pubkey, msg, sig) {
		return nil, fmt.Errorf("bridge signature does not verify for %s", s.pubkey)
	}
	return sig, nil
}

// SignTransaction asks the wallet to sign tx and returns the signed wire bytes.
func (s *BridgeSigner) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	var out bridgeTransaction
	body := bridgeTransaction{Transaction: base64.StdEncoding.EncodeToString(tx)}
	if err := s.call(ctx, http.MethodPost, "/signTransaction", body, &out); err != nil {
		return nil, err
	}
	signed, err := base64.StdEncoding.DecodeString(out.Transaction)
	if err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	if _, err := ParseTransaction(signed); err != nil {
		return nil, err
	}
	return signed, nil
}

func (s *BridgeSigner) call(ctx context.Context, method, path string, body, out any) error {
	var bErr bridgeError
	r := s.client.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&bErr)
	if body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		return fmt.Errorf("wallet bridge %s: %w", path, err)
	}
	if resp.IsError() {
		if resp.StatusCode() == http.StatusForbidden || bErr.Code == "USER_REJECTED" {
			return fmt.Errorf("wallet bridge %s: %w", path, ErrRejected)
		}
		return fmt.Errorf("wallet bridge %s: status %d: %s", path, resp.StatusCode(), bErr.Error)
	}
	return nil
}
