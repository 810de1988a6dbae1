package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// DefaultPageSize is the single directory page read for role broadcasts.
const DefaultPageSize = 100

// Recipients resolves device tokens from the directory. Directory failures
// degrade to an empty result instead of failing the request.
type Recipients struct {
	directory dispatch.Directory
	adminRole string
	pageSize  int
	logger    *slog.Logger
}

func NewRecipients(directory dispatch.Directory, adminRole string, pageSize int, logger *slog.Logger) *Recipients {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Recipients{
		directory: directory,
		adminRole: adminRole,
		pageSize:  pageSize,
		logger:    logger.With("component", "Recipients"),
	}
}

// Resolve picks the lookup matching the request type.
func (r *Recipients) Resolve(ctx context.Context, cred dispatch.Credential, req *dispatch.NotificationRequest) []string {
	switch req.Type {
	case dispatch.ToAdmins:
		return r.ResolveForRole(ctx, cred, r.adminRole)
	case dispatch.ToUser:
		if token, ok := r.ResolveForUser(ctx, cred, req.UserID); ok {
			return []string{token}
		}
	}
	return []string{}
}

// ResolveForRole returns, in directory order, the tokens of entries whose role
// equals role exactly and whose token is non-empty.
func (r *Recipients) ResolveForRole(ctx context.Context, cred dispatch.Credential, role string) []string {
	entries, err := r.directory.List(ctx, cred, r.pageSize)
	if err != nil {
		r.logger.Error("Directory query failed; continuing with no recipients", "role", role, "err", err)
		return []string{}
	}

	tokens := make([]string, 0)
	for _, e := range entries {
		if e.Role == role && e.DeviceToken != "" {
			tokens = append(tokens, e.DeviceToken)
		}
	}
	r.logger.Debug("Resolved role tokens", "role", role, "entries", len(entries), "tokens", len(tokens))
	return tokens
}

// ResolveForUser returns the user's token, or false when the user is unknown,
// has no token, or the lookup failed.
func (r *Recipients) ResolveForUser(ctx context.Context, cred dispatch.Credential, userID string) (string, bool) {
	entry, err := r.directory.Get(ctx, cred, userID)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			r.logger.Warn("User not found in directory", "user_id", userID)
		} else {
			r.logger.Error("Directory lookup failed; continuing with no recipients", "user_id", userID, "err", err)
		}
		return "", false
	}
	if entry.DeviceToken == "" {
		r.logger.Info("No device token registered for user", "user_id", userID)
		return "", false
	}
	return entry.DeviceToken, true
}
