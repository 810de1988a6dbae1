package pipeline

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// CorrelationKey carries the report id in the message data.
const CorrelationKey = "report_id"

// Bridge runs one notification request through credential resolution,
// recipient lookup and fan-out.
type Bridge struct {
	credentials dispatch.CredentialResolver
	recipients  *Recipients
	fanOut      *FanOut
	logger      *slog.Logger
}

// NewBridge accepts a nil resolver when neither the sender nor the directory
// needs a credential.
func NewBridge(credentials dispatch.CredentialResolver, recipients *Recipients, fanOut *FanOut, logger *slog.Logger) *Bridge {
	return &Bridge{
		credentials: credentials,
		recipients:  recipients,
		fanOut:      fanOut,
		logger:      logger,
	}
}

// Handle returns an error only for invalid requests and credential failures.
// Directory and delivery failures are folded into the result.
func (b *Bridge) Handle(ctx context.Context, req *dispatch.NotificationRequest) (dispatch.Result, error) {
	if err := req.Validate(); err != nil {
		return dispatch.Result{}, err
	}
	reqLogger := b.logger.With("type", req.Type, "report_id", req.ReportID)

	var cred dispatch.Credential
	if b.credentials != nil {
		var err error
		cred, err = b.credentials.Resolve(ctx)
		if err != nil {
			reqLogger.Error("Failed to resolve provider credential", "err", err)
			return dispatch.Result{}, err
		}
	}

	tokens := b.recipients.Resolve(ctx, cred, req)
	if len(tokens) == 0 {
		reqLogger.Info("No device tokens resolved; nothing to send")
		return dispatch.Result{}, nil
	}

	reqLogger.Info("Sending notification", "devices", len(tokens))
	result := b.fanOut.Dispatch(ctx, cred, tokens, messageFor(req))
	reqLogger.Info("Dispatch complete", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

func messageFor(req *dispatch.NotificationRequest) dispatch.Message {
	return dispatch.Message{
		Content: notification.NotificationContent{
			Title: req.Title,
			Body:  req.Body,
		},
		Data: map[string]string{CorrelationKey: req.ReportID},
	}
}

// NewProcessor adapts the Bridge to the streaming pipeline. Credential and
// configuration failures are returned so the message is redelivered; once a
// fan-out ran the message is acknowledged whatever the per-token outcome.
func NewProcessor(bridge *Bridge, logger *slog.Logger) messagepipeline.StreamProcessor[dispatch.NotificationRequest] {
	return func(ctx context.Context, original messagepipeline.Message, request *dispatch.NotificationRequest) error {
		procLogger := logger.With("pubsub_msg_id", original.ID)

		result, err := bridge.Handle(ctx, request)
		if err != nil {
			if dispatch.IsOperatorError(err) {
				procLogger.Error("Dispatch aborted; message will be redelivered", "err", err)
				return err
			}
			procLogger.Warn("Dropping invalid notification request", "err", err)
			return nil
		}

		procLogger.Info("Notification dispatched", "sent", result.Sent, "failed", result.Failed)
		return nil
	}
}
