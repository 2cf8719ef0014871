package client

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

// NotifyClient sends user-facing email and admin bot alerts. Every send is
// best-effort: callers log failures and move on, notification must never
// fail a provisioning that already succeeded.
type NotifyClient struct {
	mailAPIURL  string
	mailAPIKey  string
	mailFrom    string
	botAPIURL   string
	botToken    string
	adminChatID string
	httpClient  *http.Client
}

func NewNotifyClient(mailAPIURL, mailAPIKey, mailFrom, botAPIURL, botToken, adminChatID string) *NotifyClient {
	return &NotifyClient{
		mailAPIURL:  mailAPIURL,
		mailAPIKey:  mailAPIKey,
		mailFrom:    mailFrom,
		botAPIURL:   botAPIURL,
		botToken:    botToken,
		adminChatID: adminChatID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// SendEmail sends a plain-text email through the mail API.
func (c *NotifyClient) SendEmail(ctx context.Context, to, subject, text string) error {
	// Do not log recipient addresses.
	log.Printf("[NotifyClient] Sending email: %s", subject)

	body, err := json.Marshal(&emailRequest{
		From:    c.mailFrom,
		To:      []string{to},
		Subject: subject,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.mailAPIURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.mailAPIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// NotifyAdmin posts a message to the admin chat via the bot API.
func (c *NotifyClient) NotifyAdmin(ctx context.Context, text string) error {
	if c.botToken == "" || c.adminChatID == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"chat_id": c.adminChatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.botAPIURL, c.botToken)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bot API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
