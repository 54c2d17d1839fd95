package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/pkg/httpretry"
	"github.com/leadline/outreach-engine/internal/pkg/logger"
)

// WhatsAppSender delivers messages through a browser-automation gateway
// holding one authenticated WhatsApp session. The gateway exposes a small
// HTTP API on localhost; this client is the only contract the dispatcher
// has with it — session login and QR mechanics live entirely gateway-side.
//
// One gateway session must never be driven by two processes at once; the
// worker enforces that with a distributed session lock before it ever
// constructs this sender.
type WhatsAppSender struct {
	baseURL   string
	sessionID string
	apiToken  string

	// Sends are never retried: a timeout after the gateway already typed
	// the message would double-send. Status checks are idempotent and go
	// through the retrying client.
	httpClient   *http.Client
	statusClient httpretry.HTTPDoer
}

// NewWhatsAppSender creates a sender bound to one named gateway session.
func NewWhatsAppSender(baseURL, sessionID, apiToken string) *WhatsAppSender {
	httpClient := &http.Client{
		Timeout: 60 * time.Second, // the gateway types the message out; slow by design
	}
	return &WhatsAppSender{
		baseURL:      strings.TrimRight(baseURL, "/"),
		sessionID:    sessionID,
		apiToken:     apiToken,
		httpClient:   httpClient,
		statusClient: httpretry.NewRetryClient(httpClient, 3),
	}
}

// Channel identifies this sender's channel.
func (s *WhatsAppSender) Channel() domain.ChannelType { return domain.ChannelWhatsApp }

// Send delivers one message through the gateway session. The call blocks
// until the gateway reports the message accepted or rejected.
func (s *WhatsAppSender) Send(ctx context.Context, msg *domain.ChannelMessage) (*domain.SendResult, error) {
	if strings.TrimSpace(msg.Destination) == "" {
		return nil, ErrNoDestination
	}

	payload := map[string]interface{}{
		"session": s.sessionID,
		"phone":   msg.Destination,
		"message": msg.Body,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/api/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp gateway: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return &domain.SendResult{
			Success: false,
			Channel: domain.ChannelWhatsApp,
			Error:   fmt.Sprintf("gateway error %d: %s", resp.StatusCode, truncate(string(body), 300)),
		}, nil
	}

	var result struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("whatsapp gateway response: %w", err)
	}

	logger.Info("whatsapp message accepted",
		"destination", msg.Destination,
		"provider_message_id", result.MessageID)

	return &domain.SendResult{
		Success:           true,
		ProviderMessageID: result.MessageID,
		Channel:           domain.ChannelWhatsApp,
		SentAt:            time.Now(),
	}, nil
}

// SessionStatus asks the gateway whether the session is authenticated and
// connected. The worker checks this once at startup.
func (s *WhatsAppSender) SessionStatus(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/api/sessions/%s/status", s.baseURL, s.sessionID), nil)
	if err != nil {
		return "", err
	}
	if s.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiToken)
	}

	resp, err := s.statusClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway error %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Status, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
