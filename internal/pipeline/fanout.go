package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// FanOut sends one message per token concurrently and waits for every send to
// settle. A failed send never cancels its siblings.
type FanOut struct {
	sender         dispatch.Sender
	maxConcurrency int
	logger         *slog.Logger
}

// NewFanOut caps in-flight sends at maxConcurrency; zero or less is unbounded.
func NewFanOut(sender dispatch.Sender, maxConcurrency int, logger *slog.Logger) *FanOut {
	return &FanOut{
		sender:         sender,
		maxConcurrency: maxConcurrency,
		logger:         logger.With("component", "FanOut"),
	}
}

func (f *FanOut) Dispatch(ctx context.Context, cred dispatch.Credential, tokens []string, msg dispatch.Message) dispatch.Result {
	if len(tokens) == 0 {
		return dispatch.Result{}
	}

	outcomes := make([]error, len(tokens))

	// A plain Group: no derived context, so one failure cannot cancel the rest.
	var g errgroup.Group
	if f.maxConcurrency > 0 {
		g.SetLimit(f.maxConcurrency)
	}
	for i, token := range tokens {
		g.Go(func() error {
			outcomes[i] = f.sender.Send(ctx, cred, token, msg)
			return nil
		})
	}
	_ = g.Wait()

	var result dispatch.Result
	for i, err := range outcomes {
		if err != nil {
			result.Failed++
			f.logger.Warn("FCM send failed", "token", dispatch.ShortToken(tokens[i]), "err", err)
			continue
		}
		result.Sent++
	}
	return result
}

