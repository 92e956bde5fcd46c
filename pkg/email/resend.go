package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultResendAPIURL is the Resend send-email endpoint
const DefaultResendAPIURL = "https://api.resend.com/emails"

// ResendConfig holds configuration for the Resend API
type ResendConfig struct {
	APIURL string
	APIKey string
	From   string
}

// ResendMailer sends e-mail through the Resend HTTP API
type ResendMailer struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

// NewResendMailer creates a new Resend client
func NewResendMailer(config ResendConfig, client *http.Client) *ResendMailer {
	if config.APIURL == "" {
		config.APIURL = DefaultResendAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ResendMailer{
		apiURL: config.APIURL,
		apiKey: config.APIKey,
		from:   config.From,
		client: client,
	}
}

type resendAttachment struct {
	Filename string `json:"filename"`
	// base64 encoded
	Content string `json:"content"`
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html,omitempty"`
	Text        string             `json:"text,omitempty"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send posts the message to Resend
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if m.apiKey == "" {
		return fmt.Errorf("resend api key is not configured")
	}

	payload := resendRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, resendAttachment{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read email response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr resendResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("resend api error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("resend api error: status %d", resp.StatusCode)
	}

	return nil
}
