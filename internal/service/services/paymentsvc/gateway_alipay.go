package paymentsvc

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/service/models/callback"
)

const GatewayAlipay = "alipay"

// AlipayGateway validates and parses Alipay async notifications. The body is
// form encoded; the sign field is an RSA-SHA256 signature over the remaining
// parameters sorted by key.
type AlipayGateway struct {
	publicKey *rsa.PublicKey
}

// NewAlipayGateway parses the platform's PEM-encoded RSA public key.
func NewAlipayGateway(publicKeyPEM string) (*AlipayGateway, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode alipay public key PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alipay public key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("alipay public key is not RSA")
	}

	return &AlipayGateway{publicKey: rsaKey}, nil
}

func (g *AlipayGateway) Name() string { return GatewayAlipay }

func (g *AlipayGateway) RequestID(payload []byte, _ map[string]string) (string, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return "", fmt.Errorf("failed to parse alipay notification: %w", err)
	}
	if id := values.Get("notify_id"); id != "" {
		return id, nil
	}

	return "", fmt.Errorf("alipay notification has no notify_id")
}

func (g *AlipayGateway) VerifySignature(payload []byte, _ map[string]string, signature string) error {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return fmt.Errorf("failed to parse alipay notification: %w", err)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("failed to decode alipay signature: %w", err)
	}

	digest := sha256.Sum256([]byte(signingString(values)))
	if err := rsa.VerifyPKCS1v15(g.publicKey, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("alipay signature mismatch: %w", err)
	}

	return nil
}

func (g *AlipayGateway) Parse(payload []byte) (*callback.Event, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to parse alipay notification: %w", err)
	}

	outTradeNo := values.Get("out_trade_no")
	tradeNo := values.Get("trade_no")
	if outTradeNo == "" || tradeNo == "" {
		return nil, fmt.Errorf("alipay notification is missing trade identifiers")
	}

	amount, err := decimal.NewFromString(values.Get("total_amount"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse alipay total_amount: %w", err)
	}

	status := values.Get("trade_status")

	return &callback.Event{
		Gateway:       GatewayAlipay,
		RequestID:     values.Get("notify_id"),
		OrderID:       outTradeNo,
		TransactionID: tradeNo,
		Amount:        amount,
		Succeeded:     status == "TRADE_SUCCESS" || status == "TRADE_FINISHED",
	}, nil
}

// signingString joins key=value pairs sorted by key, excluding sign and
// sign_type, the way Alipay defines its signature base string.
func signingString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if key == "sign" || key == "sign_type" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+values.Get(key))
	}

	return strings.Join(pairs, "&")
}
