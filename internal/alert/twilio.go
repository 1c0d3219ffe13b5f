package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioDefaultBaseURL = "https://api.twilio.com"

// TwilioConfig holds the credentials for the SMS channel.
type TwilioConfig struct {
	AccountSID          string
	AuthToken           string
	MessagingServiceSID string

	// To is the helpline number that receives the alert SMS.
	To string

	// BaseURL overrides the Twilio API endpoint, used in tests.
	BaseURL string

	// HTTPClient overrides the default client, used in tests.
	HTTPClient *http.Client
}

// TwilioChannel sends alert SMS through the Twilio Messages API.
type TwilioChannel struct {
	cfg     TwilioConfig
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewTwilioChannel creates the SMS channel.
func NewTwilioChannel(cfg TwilioConfig, logger *slog.Logger) *TwilioChannel {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twilioDefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TwilioChannel{cfg: cfg, baseURL: baseURL, client: client, logger: logger}
}

// Name implements Channel.
func (c *TwilioChannel) Name() string { return "twilio_sms" }

// Configured implements Channel.
func (c *TwilioChannel) Configured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != "" &&
		c.cfg.MessagingServiceSID != "" && c.cfg.To != ""
}

// twilioError is the API error body returned on non-2xx responses.
type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send implements Channel.
func (c *TwilioChannel) Send(ctx context.Context, p Payload) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	form := url.Values{}
	form.Set("To", c.cfg.To)
	form.Set("MessagingServiceSid", c.cfg.MessagingServiceSID)
	form.Set("Body", formatMessage(p))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building twilio request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr twilioError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("twilio returned %d: %s (code %d)", resp.StatusCode, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("twilio returned %d", resp.StatusCode)
	}

	c.logger.Info("alert SMS sent", "to", c.cfg.To)
	return nil
}
