package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client sends SMS through the Moolre VAS API. Delivery is best-effort and
// at-most-once: callers must never fail a business transition because an SMS
// did not go out.
type Client struct {
	baseURL       string
	apiUser       string
	apiKey        string
	pubKey        string
	vasKey        string
	senderID      string
	accountNumber string
	http          *http.Client
	log           *zerolog.Logger
}

type Config struct {
	BaseURL       string
	APIUser       string
	APIKey        string
	PubKey        string
	VASKey        string
	SenderID      string
	AccountNumber string
}

func NewClient(cfg Config, log *zerolog.Logger) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		apiUser:       cfg.APIUser,
		apiKey:        cfg.APIKey,
		pubKey:        cfg.PubKey,
		vasKey:        cfg.VASKey,
		senderID:      cfg.SenderID,
		accountNumber: cfg.AccountNumber,
		http:          &http.Client{Timeout: 10 * time.Second},
		log:           log,
	}
}

type sendBody struct {
	Type          int      `json:"type"`
	SenderID      string   `json:"senderid"`
	Recipients    []string `json:"recipients"`
	Message       string   `json:"message"`
	AccountNumber string   `json:"accountnumber,omitempty"`
}

type sendResponse struct {
	Status  any    `json:"status"`
	Message string `json:"message"`
}

// Send delivers one message to the given recipients (233XXXXXXXXX format).
// The response is inspected only for logging.
func (c *Client) Send(ctx context.Context, recipients []string, message string) error {
	if c.vasKey == "" {
		c.log.Warn().Msg("SMS VAS key not configured, skipping send")
		return nil
	}

	payload, err := json.Marshal(sendBody{
		Type:          1,
		SenderID:      c.senderID,
		Recipients:    recipients,
		Message:       message,
		AccountNumber: c.accountNumber,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/open/sms/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-USER", c.apiUser)
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-API-PUBKEY", c.pubKey)
	req.Header.Set("X-API-VASKEY", c.vasKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var decoded sendResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.log.Warn().Int("http_status", resp.StatusCode).Msg("SMS gateway returned non-JSON response")
		return fmt.Errorf("sms gateway returned invalid response")
	}

	c.log.Debug().
		Int("recipients", len(recipients)).
		Int("http_status", resp.StatusCode).
		Str("gateway_message", decoded.Message).
		Msg("SMS dispatched")
	return nil
}

// Message templates used across the registration flow.

func RegistrationPendingMessage(name, eventTitle, ticketCode string) string {
	return fmt.Sprintf("Hi %s, your registration for %q is pending payment. Ticket ID: %s. Please complete payment via the USSD prompt on your phone.", name, eventTitle, ticketCode)
}

func RegistrationConfirmedMessage(name, eventTitle, ticketCode string) string {
	return fmt.Sprintf("Hi %s, your registration for %q is confirmed. Ticket ID: %s. See you there!", name, eventTitle, ticketCode)
}

func PaymentConfirmedMessage(name, eventTitle, ticketCode, tierName string, amount int) string {
	return fmt.Sprintf("Payment confirmed! Hi %s, your registration for %q is confirmed.\nTicket ID: %s\nTicket Type: %s\nAmount: GHS %d\nSee you there!", name, eventTitle, ticketCode, tierName, amount)
}

func RegistrationExpiredMessage(name, eventTitle string) string {
	return fmt.Sprintf("Hi %s, your registration for %q was cancelled because payment was not completed in time.", name, eventTitle)
}

func PaymentReminderMessage(name, eventTitle, ticketCode string, amount int) string {
	return fmt.Sprintf("Hi %s, payment of GHS %d for your %q ticket (%s) is still pending. Dial the USSD prompt to complete it and secure your spot.", name, amount, eventTitle, ticketCode)
}
