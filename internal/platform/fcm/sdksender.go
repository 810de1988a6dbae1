// --- File: internal/platform/fcm/sdksender.go ---
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// SDKSender delivers through the Firebase Admin SDK, which carries its own
// credentials; the resolved request credential is not used.
type SDKSender struct {
	client MessagingClient
	opts   Options
	logger *slog.Logger
}

// NewSDKSender accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
func NewSDKSender(client MessagingClient, opts Options, logger *slog.Logger) *SDKSender {
	return &SDKSender{
		client: client,
		opts:   opts,
		logger: logger.With("component", "FCMSDKSender"),
	}
}

func (s *SDKSender) buildMessage(token string, msg dispatch.Message) *messaging.Message {
	sound := soundOrDefault(msg)
	badge := 1
	return &messaging.Message{
		Token: token,
		Data:  withClickAction(msg.Data, s.opts.ClickAction),
		Notification: &messaging.Notification{
			Title: msg.Content.Title,
			Body:  msg.Content.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: priorityHigh,
			Notification: &messaging.AndroidNotification{
				ChannelID: s.opts.ChannelID,
				Sound:     sound,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: sound,
					Badge: &badge,
				},
			},
		},
	}
}

func (s *SDKSender) Send(ctx context.Context, _ dispatch.Credential, token string, msg dispatch.Message) error {
	id, err := s.client.Send(ctx, s.buildMessage(token, msg))
	if err != nil {
		if messaging.IsInvalidArgument(err) || messaging.IsRegistrationTokenNotRegistered(err) {
			return fmt.Errorf("%w: token rejected: %v", dispatch.ErrDelivery, err)
		}
		return fmt.Errorf("%w: fcm transport failed: %v", dispatch.ErrDelivery, err)
	}
	s.logger.Debug("FCM sent", "token", dispatch.ShortToken(token), "message_id", id)
	return nil
}
