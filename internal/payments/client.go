package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrGatewayRejected is a well-formed "no" from the processor: bad payer,
	// bad account, parameter error. Surfaced to the caller as a payment failure.
	ErrGatewayRejected = errors.New("payment gateway rejected the charge")
	// ErrUpstreamContract marks a malformed response (non-JSON, unexpected
	// shape). This means the integration is broken, not that the charge failed.
	ErrUpstreamContract = errors.New("payment gateway returned an invalid response")
)

type Config struct {
	BaseURL string
	APIUser string
	APIKey  string
	PubKey  string
	VASKey  string
}

// Client talks to the Moolre open API: USSD charge collection and SMS.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zerolog.Logger
}

func NewClient(cfg Config, log *zerolog.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}
}

type ChargeRequest struct {
	Payer       string // 233XXXXXXXXX, already normalized
	Amount      int    // GHS
	Currency    string
	ExternalRef string // our registration id, echoed back in the webhook
	Description string
}

type ChargeAccepted struct {
	// TrackingRef is the processor-side identifier stored on the registration
	// as the correlation value for webhook matching.
	TrackingRef string
	Message     string
}

type chargeBody struct {
	Type          int    `json:"type"`
	Channel       string `json:"channel"`
	Currency      string `json:"currency"`
	Payer         string `json:"payer"`
	Amount        int    `json:"amount"`
	AccountNumber string `json:"accountnumber"`
	ExternalRef   string `json:"externalref"`
	Reference     string `json:"reference"`
}

type gatewayResponse struct {
	Status  any    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Reference     string `json:"reference"`
		TransactionID string `json:"transaction_id"`
	} `json:"data"`
}

// InitiateCharge asks the processor to push a USSD payment prompt to the
// payer's phone. Acceptance is not payment success: the money outcome arrives
// later on the webhook.
func (c *Client) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeAccepted, error) {
	currency := req.Currency
	if currency == "" {
		currency = "GHS"
	}
	body := chargeBody{
		Type:          1,
		Channel:       "13",
		Currency:      currency,
		Payer:         req.Payer,
		Amount:        req.Amount,
		AccountNumber: req.Payer,
		ExternalRef:   req.ExternalRef,
		Reference:     req.Description,
	}

	resp, err := c.post(ctx, "/open/transact/payment", body, false)
	if err != nil {
		return nil, err
	}

	if NormalizeStatus(resp.Status) != OutcomeSuccess {
		c.log.Warn().
			Str("externalref", req.ExternalRef).
			Str("gateway_message", resp.Message).
			Msg("charge initiation rejected by gateway")
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, resp.Message)
	}

	tracking := resp.Data.Reference
	if tracking == "" {
		tracking = resp.Data.TransactionID
	}
	return &ChargeAccepted{TrackingRef: tracking, Message: resp.Message}, nil
}

func (c *Client) post(ctx context.Context, path string, body any, vas bool) (*gatewayResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-USER", c.cfg.APIUser)
	httpReq.Header.Set("X-API-KEY", c.cfg.APIKey)
	httpReq.Header.Set("X-API-PUBKEY", c.cfg.PubKey)
	if vas {
		httpReq.Header.Set("X-API-VASKEY", c.cfg.VASKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	var resp gatewayResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		snippet := string(raw)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		c.log.Error().Str("path", path).Str("body", snippet).Msg("gateway returned non-JSON response")
		return nil, ErrUpstreamContract
	}

	// Gateway errors still arrive as well-formed JSON with a non-2xx code, so
	// the status field decides; only treat transport-level failures here.
	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: http %d", ErrUpstreamContract, httpResp.StatusCode)
	}
	return &resp, nil
}
