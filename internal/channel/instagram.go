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

	"tripflow_backend/platform/config"
	"tripflow_backend/platform/logger"
)

// InstagramClient sends direct messages through the Graph messaging API.
// Recipients are addressed by their page-scoped user ID.
type InstagramClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
	log         *logger.Logger
}

type graphMessageRequest struct {
	Recipient graphRecipient `json:"recipient"`
	Message   graphMessage   `json:"message"`
}

type graphRecipient struct {
	ID string `json:"id"`
}

type graphMessage struct {
	Text string `json:"text"`
}

func NewInstagramClient(cfg config.InstagramConfig, log *logger.Logger) *InstagramClient {
	if cfg.GetInstagramAPIURL() == "" || cfg.GetInstagramAccessToken() == "" {
		return nil
	}

	return &InstagramClient{
		baseURL:     strings.TrimRight(cfg.GetInstagramAPIURL(), "/"),
		accessToken: cfg.GetInstagramAccessToken(),
		http:        &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

func (c *InstagramClient) SendMessage(ctx context.Context, recipientID string, message string) error {
	if c == nil {
		return nil
	}

	payload := graphMessageRequest{
		Recipient: graphRecipient{ID: recipientID},
		Message:   graphMessage{Text: message},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal instagram payload: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("instagram request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("instagram api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("instagram message sent", "recipient", recipientID)
	return nil
}
