// --- File: pkg/dispatch/interfaces.go ---
package dispatch

import (
	"context"

	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// Credential schemes understood by the push provider.
const (
	SchemeKey    = "key"
	SchemeBearer = "Bearer"
)

// Credential is a bearer credential for the push provider. Its expiry is
// enforced by the provider and is not tracked here.
type Credential struct {
	Scheme string
	Token  string
}

// AuthorizationHeader renders the credential as an HTTP Authorization value.
func (c Credential) AuthorizationHeader() string {
	if c.Scheme == SchemeKey {
		return "key=" + c.Token
	}
	return "Bearer " + c.Token
}

// IsBearer reports whether the credential is an OAuth2 access token.
func (c Credential) IsBearer() bool {
	return c.Scheme == SchemeBearer && c.Token != ""
}

// ShortToken keeps device tokens out of logs beyond a recognisable prefix.
func ShortToken(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}

// CredentialResolver produces a credential usable against the push provider.
type CredentialResolver interface {
	Resolve(ctx context.Context) (Credential, error)
}

// Message is the content delivered to each device token.
type Message struct {
	Content notification.NotificationContent
	// Data is opaque metadata, not displayed to the user.
	Data map[string]string
}

// Sender defines the contract for a component that delivers one message to
// one device token on a specific provider API generation.
type Sender interface {
	Send(ctx context.Context, cred Credential, token string, msg Message) error
}

// DirectoryEntry is one user record as read from the directory.
type DirectoryEntry struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DeviceToken string `json:"device_token,omitempty"`
}

// Directory is a read-only view of the user directory.
type Directory interface {
	// List returns a single page of up to pageSize entries in directory order.
	List(ctx context.Context, cred Credential, pageSize int) ([]DirectoryEntry, error)
	// Get returns one entry by user id. A missing user yields ErrNotFound.
	Get(ctx context.Context, cred Credential, userID string) (*DirectoryEntry, error)
}
