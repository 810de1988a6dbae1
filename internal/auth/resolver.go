package auth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// Strategy names accepted by NewResolver.
const (
	StrategyStaticKey       = "static_key"
	StrategySignedAssertion = "signed_assertion"
	StrategyManaged         = "managed"
)

// Settings carries everything any strategy may need.
type Settings struct {
	Strategy       string
	ServerKey      string
	ServiceAccount *ServiceAccount
	TokenURL       string
}

// NewResolver selects the credential strategy named in settings.
func NewResolver(settings Settings, httpClient *http.Client, logger *slog.Logger) (dispatch.CredentialResolver, error) {
	switch settings.Strategy {
	case StrategyStaticKey:
		return NewStaticKeyResolver(settings.ServerKey), nil
	case StrategySignedAssertion:
		if settings.ServiceAccount == nil {
			return nil, fmt.Errorf("%w: %s requires a service account", dispatch.ErrConfiguration, settings.Strategy)
		}
		var opts []AssertionOption
		if settings.TokenURL != "" {
			opts = append(opts, WithTokenURL(settings.TokenURL))
		}
		return NewAssertionResolver(settings.ServiceAccount, httpClient, logger, opts...), nil
	case StrategyManaged:
		if settings.ServiceAccount == nil {
			return nil, fmt.Errorf("%w: %s requires a service account", dispatch.ErrConfiguration, settings.Strategy)
		}
		return NewManagedResolver(settings.ServiceAccount, settings.TokenURL, httpClient), nil
	default:
		return nil, fmt.Errorf("%w: unknown credential strategy %q", dispatch.ErrConfiguration, settings.Strategy)
	}
}
