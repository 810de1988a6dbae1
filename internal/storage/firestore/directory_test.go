//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/tinywideclouds/go-notification-bridge/internal/storage/firestore"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

func setupSuite(t *testing.T) (context.Context, *firestore.Client, *fs.DirectoryStore) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	projectID := "test-directory-store"
	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	client, err := firestore.NewClient(ctx, projectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := fs.NewDirectoryStore(client, fs.DefaultFields)
	return ctx, client, store
}

func TestDirectoryStore_Integration(t *testing.T) {
	ctx, client, store := setupSuite(t)
	users := client.Collection("users")

	_, err := users.Doc("admin-1").Set(ctx, map[string]any{"role": "admin", "fcm_token": "tok-admin-1"})
	require.NoError(t, err)
	_, err = users.Doc("admin-2").Set(ctx, map[string]any{"role": "admin"})
	require.NoError(t, err)
	_, err = users.Doc("user-1").Set(ctx, map[string]any{"role": "user", "fcm_token": "tok-user-1"})
	require.NoError(t, err)

	t.Run("List reads role and token", func(t *testing.T) {
		entries, err := store.List(ctx, dispatch.Credential{}, 100)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		byID := make(map[string]dispatch.DirectoryEntry)
		for _, e := range entries {
			byID[e.UserID] = e
		}
		assert.Equal(t, "tok-admin-1", byID["admin-1"].DeviceToken)
		assert.Empty(t, byID["admin-2"].DeviceToken)
		assert.Equal(t, "user", byID["user-1"].Role)
	})

	t.Run("List honours page size", func(t *testing.T) {
		entries, err := store.List(ctx, dispatch.Credential{}, 2)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("Get existing user", func(t *testing.T) {
		entry, err := store.Get(ctx, dispatch.Credential{}, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "tok-user-1", entry.DeviceToken)
	})

	t.Run("Get unknown user", func(t *testing.T) {
		_, err := store.Get(ctx, dispatch.Credential{}, "ghost")
		require.Error(t, err)
		assert.True(t, errors.Is(err, dispatch.ErrNotFound))
	})
}
