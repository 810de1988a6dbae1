package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// LegacySender posts to the key-authenticated legacy HTTP API.
type LegacySender struct {
	url        string
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

func NewLegacySender(url string, opts Options, httpClient *http.Client, logger *slog.Logger) *LegacySender {
	return &LegacySender{
		url:        url,
		opts:       opts,
		httpClient: httpClient,
		logger:     logger.With("component", "FCMLegacySender"),
	}
}

type legacyNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Sound       string `json:"sound"`
	ClickAction string `json:"click_action,omitempty"`
}

type legacyMessage struct {
	To           string             `json:"to"`
	Notification legacyNotification `json:"notification"`
	Data         map[string]string  `json:"data"`
	Priority     string             `json:"priority"`
}

func (s *LegacySender) Send(ctx context.Context, cred dispatch.Credential, token string, msg dispatch.Message) error {
	body, err := json.Marshal(legacyMessage{
		To: token,
		Notification: legacyNotification{
			Title:       msg.Content.Title,
			Body:        msg.Content.Body,
			Sound:       soundOrDefault(msg),
			ClickAction: s.opts.ClickAction,
		},
		Data:     msg.Data,
		Priority: priorityHigh,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal legacy payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build legacy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", cred.AuthorizationHeader())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fcm transport failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	s.logger.Debug("FCM sent", "token", dispatch.ShortToken(token))
	return nil
}
