// Package fcm delivers notifications through Firebase Cloud Messaging.
package fcm

import (
	"fmt"
	"io"
	"net/http"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

const (
	DefaultLegacyURL   = "https://fcm.googleapis.com/fcm/send"
	DefaultV1URLFormat = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

	priorityHigh = "high"
	defaultSound = "default"
)

// Options holds the platform hints added to every message.
type Options struct {
	// ChannelID is the Android notification channel.
	ChannelID string
	// ClickAction is the intent the client opens on tap.
	ClickAction string
}

func soundOrDefault(msg dispatch.Message) string {
	if msg.Content.Sound != "" {
		return msg.Content.Sound
	}
	return defaultSound
}

// withClickAction copies data and adds the click action when configured.
func withClickAction(data map[string]string, clickAction string) map[string]string {
	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	if clickAction != "" {
		out["click_action"] = clickAction
	}
	return out
}

// checkResponse turns a non-2xx provider answer into a DeliveryError carrying
// the response body, which callers log and never return to the client.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%w: status=%d, body=%s", dispatch.ErrDelivery, resp.StatusCode, string(body))
}

