package verifysvc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// codePayload is the signed content of a verification code. Field names are
// kept short because the whole payload rides inside a QR code.
type codePayload struct {
	OrderID     string `json:"oid"`
	TenantID    string `json:"tid"`
	OrderNumber string `json:"num"`
	Nonce       string `json:"nce"`
	IssuedAt    int64  `json:"iat"`
}

// encodeCode serializes and signs a payload:
// base64url(json) + "." + base64url(hmac-sha256(secret, json)).
func encodeCode(secret []byte, p codePayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal code payload: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	sig := mac.Sum(nil)

	return base64.RawURLEncoding.EncodeToString(body) +
		"." +
		base64.RawURLEncoding.EncodeToString(sig), nil
}

// decodeCode parses a presented code and checks its signature with a
// constant-time comparison. Any malformed or tampered input yields a nil
// payload; the caller maps that to VERIFICATION_CODE_INVALID.
func decodeCode(secret []byte, code string) *codePayload {
	parts := strings.Split(code, ".")
	if len(parts) != 2 {
		return nil
	}

	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil
	}

	var p codePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil
	}

	return &p
}

// newNonce returns 128 bits of randomness, hex encoded. The nonce ties a
// code to the order's current verification state: issuing a new code
// replaces the stored nonce, so older codes stop matching.
func newNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
