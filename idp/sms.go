package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// SMSSender delivers one-time codes. Implementations must not log the code
// outside development senders.
type SMSSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// ConsoleSMSSender is a development implementation that logs messages to console
type ConsoleSMSSender struct{}

func (c *ConsoleSMSSender) SendOTP(ctx context.Context, phone, code string) error {
	log.Printf("\n=== SMS: One-time code ===")
	log.Printf("To: %s", phone)
	log.Printf("Body: Your sign-in code is %s", code)
	log.Printf("==========================\n")
	return nil
}

// HTTPSMSSender posts codes to a bulk SMS gateway with an OTP route.
type HTTPSMSSender struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

func NewHTTPSMSSender(apiKey, baseURL, sender string) *HTTPSMSSender {
	return &HTTPSMSSender{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPSMSSender) SendOTP(ctx context.Context, phone, code string) error {
	if c.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}
	body := map[string]any{
		"route":     "otp",
		"numbers":   phone,
		"variables": code,
	}
	if c.Sender != "" {
		body["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
