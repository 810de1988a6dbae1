package auth

import (
	"context"
	"fmt"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// StaticKeyResolver hands out the pre-shared FCM server key.
type StaticKeyResolver struct {
	key string
}

func NewStaticKeyResolver(key string) *StaticKeyResolver {
	return &StaticKeyResolver{key: key}
}

func (r *StaticKeyResolver) Resolve(_ context.Context) (dispatch.Credential, error) {
	if r.key == "" {
		return dispatch.Credential{}, fmt.Errorf("%w: FCM_SERVER_KEY not configured", dispatch.ErrConfiguration)
	}
	return dispatch.Credential{Scheme: dispatch.SchemeKey, Token: r.key}, nil
}
