package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

var (
	ErrMissingIdentifier = errors.New("webhook payload carries no reference or transaction id")
	ErrBadSignature      = errors.New("webhook signature mismatch")
)

// WebhookPayload is the inbound callback shape. The processor is inconsistent
// about where it puts things, so every known spelling is captured and the
// accessors below pick the first populated one.
type WebhookPayload struct {
	Status        any    `json:"status"`
	Reference     string `json:"reference"`
	TransactionID string `json:"transaction_id"`
	Data          struct {
		TxStatus      any     `json:"txstatus"`
		ExternalRef   string  `json:"externalref"`
		TransactionID string  `json:"transactionid"`
		Amount        float64 `json:"amount"`
		Currency      string  `json:"currency"`
	} `json:"data"`
}

func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrUpstreamContract
	}
	if p.ExternalRef() == "" && p.TxID() == "" {
		return nil, ErrMissingIdentifier
	}
	return &p, nil
}

// ExternalRef returns the echoed reference we supplied at initiation, i.e. the
// registration's own id.
func (p *WebhookPayload) ExternalRef() string {
	if p.Data.ExternalRef != "" {
		return p.Data.ExternalRef
	}
	return p.Reference
}

// TxID returns the processor-side transaction identifier, previously stored on
// the registration as the correlation value.
func (p *WebhookPayload) TxID() string {
	if p.Data.TransactionID != "" {
		return p.Data.TransactionID
	}
	return p.TransactionID
}

func (p *WebhookPayload) Outcome() Outcome {
	if p.Status != nil {
		return NormalizeStatus(p.Status)
	}
	return NormalizeStatus(p.Data.TxStatus)
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body against the
// signature header. An empty secret disables the check (local development).
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
