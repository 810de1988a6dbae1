// --- File: internal/pipeline/transformer.go ---
// Package pipeline contains the core request processing components for the service.
package pipeline

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// NotificationRequestTransformer is a dataflow Transformer that safely unmarshals
// and validates a raw message payload into a dispatch.NotificationRequest.
func NotificationRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*dispatch.NotificationRequest, bool, error) {
	req, err := dispatch.DecodeRequest(msg.Payload)
	if err != nil {
		// skip=true: the StreamingService acks and drops the message, so a
		// malformed payload is never redelivered.
		return nil, true, fmt.Errorf("failed to unmarshal notification request from message %s: %w", msg.ID, err)
	}

	return req, false, nil
}
