// Package api provides the Instagram Graph API client used to deliver
// webhook replies.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Constants for the Instagram Graph API client
const (
	// DefaultGraphAPIURL is the Meta Graph API messages endpoint.
	DefaultGraphAPIURL = "https://graph.facebook.com/v18.0/me/messages"
	// DefaultGraphTimeout bounds outbound Graph API calls.
	DefaultGraphTimeout = 15 * time.Second
)

// InstagramSender is an interface for sending Instagram direct messages
// (for production and testing).
type InstagramSender interface {
	SendMessage(ctx context.Context, recipientID string, text string) error
}

// InstagramOpts holds configuration options for the Instagram client.
type InstagramOpts struct {
	AccessToken string // Instagram Graph API access token
	BaseURL     string // Graph API messages endpoint override
}

// InstagramOption defines a configuration option for the Instagram client.
type InstagramOption func(*InstagramOpts)

// WithAccessToken sets the Instagram Graph API access token.
func WithAccessToken(token string) InstagramOption {
	return func(o *InstagramOpts) { o.AccessToken = token }
}

// WithGraphAPIURL overrides the Graph API messages endpoint (for tests).
func WithGraphAPIURL(url string) InstagramOption {
	return func(o *InstagramOpts) { o.BaseURL = url }
}

// InstagramClient sends direct messages through the Meta Graph API.
type InstagramClient struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

// NewInstagramClient creates an Instagram client, falling back to the
// INSTAGRAM_ACCESS_TOKEN environment variable when no token option is given.
// A client with no token is still valid; sends are logged and dropped.
func NewInstagramClient(opts ...InstagramOption) *InstagramClient {
	var cfg InstagramOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("INSTAGRAM_ACCESS_TOKEN")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGraphAPIURL
	}
	slog.Debug("Instagram client config loaded", "AccessToken_set", cfg.AccessToken != "")
	return &InstagramClient{
		accessToken: cfg.AccessToken,
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: DefaultGraphTimeout},
	}
}

// instagramMessagePayload is the Graph API send-message request body.
type instagramMessagePayload struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// SendMessage sends a direct message to the given Instagram user. A missing
// access token logs the drop and returns nil so webhook processing continues.
func (c *InstagramClient) SendMessage(ctx context.Context, recipientID string, text string) error {
	if c.accessToken == "" {
		slog.Error("InstagramClient.SendMessage: access token not configured, dropping message", "recipient_id", recipientID)
		return nil
	}

	var payload instagramMessagePayload
	payload.Recipient.ID = recipientID
	payload.Message.Text = text

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Instagram message payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build Instagram send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("InstagramClient.SendMessage: request failed", "error", err, "recipient_id", recipientID)
		return fmt.Errorf("failed to send Instagram message to %s: %w", recipientID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("InstagramClient.SendMessage: Graph API error", "status_code", resp.StatusCode, "response", string(respBody), "recipient_id", recipientID)
		return fmt.Errorf("instagram send to %s failed with status %d", recipientID, resp.StatusCode)
	}

	slog.Info("InstagramClient.SendMessage: message sent", "recipient_id", recipientID)
	return nil
}

// MockInstagramSender records sends for tests.
type MockInstagramSender struct {
	SentMessages []InstagramSentMessage
	SendErr      error
}

// InstagramSentMessage is one recorded send.
type InstagramSentMessage struct {
	RecipientID string
	Text        string
}

// NewMockInstagramSender creates an empty MockInstagramSender.
func NewMockInstagramSender() *MockInstagramSender {
	return &MockInstagramSender{}
}

func (m *MockInstagramSender) SendMessage(ctx context.Context, recipientID string, text string) error {
	m.SentMessages = append(m.SentMessages, InstagramSentMessage{RecipientID: recipientID, Text: text})
	return m.SendErr
}
