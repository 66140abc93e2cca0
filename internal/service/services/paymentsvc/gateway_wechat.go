package paymentsvc

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/service/models/callback"
)

const GatewayWechat = "wechat"

// wechatNotification is the JSON body WeChat Pay posts to the callback URL.
// total_fee arrives in cents.
type wechatNotification struct {
	NotifyID      string `json:"notify_id"`
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TotalFee      int64  `json:"total_fee"`
	ResultCode    string `json:"result_code"`
}

// WechatGateway validates and parses WeChat Pay notifications. Signatures
// are HMAC-SHA256 over the raw body; the legacy uppercase
// MD5(body + "&key=" + secret) form is still accepted because older
// merchant configurations keep sending it.
type WechatGateway struct {
	secret []byte
}

func NewWechatGateway(secret []byte) *WechatGateway {
	return &WechatGateway{secret: secret}
}

func (g *WechatGateway) Name() string { return GatewayWechat }

func (g *WechatGateway) RequestID(payload []byte, _ map[string]string) (string, error) {
	var n wechatNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return "", fmt.Errorf("failed to parse wechat notification: %w", err)
	}
	if n.NotifyID == "" {
		return "", fmt.Errorf("wechat notification has no notify_id")
	}

	return n.NotifyID, nil
}

func (g *WechatGateway) VerifySignature(payload []byte, _ map[string]string, signature string) error {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return nil
	}

	sum := md5.Sum(append(append([]byte{}, payload...), []byte("&key="+string(g.secret))...))
	legacy := strings.ToUpper(hex.EncodeToString(sum[:]))
	if hmac.Equal([]byte(signature), []byte(legacy)) {
		return nil
	}

	return fmt.Errorf("wechat signature mismatch")
}

func (g *WechatGateway) Parse(payload []byte) (*callback.Event, error) {
	var n wechatNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("failed to parse wechat notification: %w", err)
	}
	if n.OutTradeNo == "" || n.TransactionID == "" {
		return nil, fmt.Errorf("wechat notification is missing trade identifiers")
	}

	return &callback.Event{
		Gateway:       GatewayWechat,
		RequestID:     n.NotifyID,
		OrderID:       n.OutTradeNo,
		TransactionID: n.TransactionID,
		Amount:        decimal.NewFromInt(n.TotalFee).Div(decimal.NewFromInt(100)),
		Succeeded:     n.ResultCode == "SUCCESS",
	}, nil
}
