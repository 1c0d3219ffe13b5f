package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const telegramDefaultBaseURL = "https://api.telegram.org"

// TelegramConfig holds the credentials for the Telegram channel.
type TelegramConfig struct {
	BotToken string
	ChatID   string

	// BaseURL overrides the Telegram API endpoint, used in tests.
	BaseURL string

	// HTTPClient overrides the default client, used in tests.
	HTTPClient *http.Client
}

// TelegramChannel sends alerts to a support-team chat through the
// Telegram Bot API. It is the fallback when SMS delivery fails.
type TelegramChannel struct {
	cfg     TelegramConfig
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewTelegramChannel creates the Telegram channel.
func NewTelegramChannel(cfg TelegramConfig, logger *slog.Logger) *TelegramChannel {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = telegramDefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TelegramChannel{cfg: cfg, baseURL: baseURL, client: client, logger: logger}
}

// Name implements Channel.
func (c *TelegramChannel) Name() string { return "telegram" }

// Configured implements Channel.
func (c *TelegramChannel) Configured() bool {
	return c.cfg.BotToken != "" && c.cfg.ChatID != ""
}

// telegramRequest is the sendMessage request body.
type telegramRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// telegramResponse is the subset of the Bot API response we check.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send implements Channel.
func (c *TelegramChannel) Send(ctx context.Context, p Payload) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(telegramRequest{ChatID: c.cfg.ChatID, Text: formatMessage(p)})
	if err != nil {
		return fmt.Errorf("encoding telegram request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiResp telegramResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil || !apiResp.OK {
		if apiResp.Description != "" {
			return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, apiResp.Description)
		}
		return fmt.Errorf("telegram returned %d", resp.StatusCode)
	}

	c.logger.Info("alert sent to telegram", "chat_id", c.cfg.ChatID)
	return nil
}
