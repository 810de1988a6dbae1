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

// V1Sender posts to the OAuth2-authenticated HTTP v1 API.
type V1Sender struct {
	url        string
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger
}

// NewV1Sender takes the fully resolved messages:send URL of one project.
func NewV1Sender(url string, opts Options, httpClient *http.Client, logger *slog.Logger) *V1Sender {
	return &V1Sender{
		url:        url,
		opts:       opts,
		httpClient: httpClient,
		logger:     logger.With("component", "FCMV1Sender"),
	}
}

type v1Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type v1AndroidNotification struct {
	ChannelID string `json:"channel_id,omitempty"`
	Sound     string `json:"sound"`
}

type v1Android struct {
	Priority     string                `json:"priority"`
	Notification v1AndroidNotification `json:"notification"`
}

type v1Aps struct {
	Sound string `json:"sound"`
	Badge int    `json:"badge"`
}

type v1APNS struct {
	Payload struct {
		Aps v1Aps `json:"aps"`
	} `json:"payload"`
}

type v1Message struct {
	Token        string            `json:"token"`
	Notification v1Notification    `json:"notification"`
	Data         map[string]string `json:"data"`
	Android      v1Android         `json:"android"`
	APNS         v1APNS            `json:"apns"`
}

type v1Envelope struct {
	Message v1Message `json:"message"`
}

func (s *V1Sender) buildEnvelope(token string, msg dispatch.Message) v1Envelope {
	sound := soundOrDefault(msg)
	m := v1Message{
		Token:        token,
		Notification: v1Notification{Title: msg.Content.Title, Body: msg.Content.Body},
		Data:         withClickAction(msg.Data, s.opts.ClickAction),
		Android: v1Android{
			Priority:     priorityHigh,
			Notification: v1AndroidNotification{ChannelID: s.opts.ChannelID, Sound: sound},
		},
	}
	m.APNS.Payload.Aps = v1Aps{Sound: sound, Badge: 1}
	return v1Envelope{Message: m}
}

func (s *V1Sender) Send(ctx context.Context, cred dispatch.Credential, token string, msg dispatch.Message) error {
	body, err := json.Marshal(s.buildEnvelope(token, msg))
	if err != nil {
		return fmt.Errorf("failed to marshal v1 payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build v1 request: %w", err)
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
