package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/giveflow/backend/internal/domain/payment"
)

// signPayload computes the hex HMAC-SHA256 signature the bank and crypto
// rails attach to every request and callback body
func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyPayload checks a callback signature in constant time
func verifyPayload(secret string, payload []byte, signature string) bool {
	expected := signPayload(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// signedClient is a JSON-over-HTTP client that signs every request body with
// the rail's shared secret
type signedClient struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
}

// do sends a signed JSON request and decodes the JSON response into out.
// Network failures map to the transient error class; 5xx responses likewise.
func (c *signedClient) do(ctx context.Context, method, path string, body any, idempotencyKey string, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Signature", signPayload(c.secretKey, payload))
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", payment.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", payment.ErrProviderTransient, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", payment.ErrProviderTransient, resp.StatusCode)
	case resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", payment.ErrProviderDeclined, string(respBody))
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("provider rejected request: status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
