package firestore_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/tinywideclouds/go-notification-bridge/internal/storage/firestore"
	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

const usersPage = `{
  "documents": [
    {"name": "projects/p/databases/(default)/documents/users/a1",
     "fields": {"role": {"stringValue": "admin"}, "fcm_token": {"stringValue": "tok-a1"}}},
    {"name": "projects/p/databases/(default)/documents/users/u1",
     "fields": {"role": {"stringValue": "user"}, "fcm_token": {"stringValue": "tok-u1"}}},
    {"name": "projects/p/databases/(default)/documents/users/a2",
     "fields": {"role": {"stringValue": "admin"}, "age": {"integerValue": "4"}}}
  ]
}`

func TestRESTDirectory_List(t *testing.T) {
	ctx := context.Background()
	bearer := dispatch.Credential{Scheme: dispatch.SchemeBearer, Token: "ya29.dir"}

	t.Run("Bearer auth and page size", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/users", r.URL.Path)
			assert.Equal(t, "100", r.URL.Query().Get("pageSize"))
			assert.Equal(t, "Bearer ya29.dir", r.Header.Get("Authorization"))
			assert.Empty(t, r.URL.Query().Get("key"))
			_, _ = w.Write([]byte(usersPage))
		}))
		defer server.Close()

		dir := fs.NewRESTDirectory(server.URL, "", fs.DefaultFields, server.Client())
		entries, err := dir.List(ctx, bearer, 100)

		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, dispatch.DirectoryEntry{UserID: "a1", Role: "admin", DeviceToken: "tok-a1"}, entries[0])
		assert.Equal(t, "u1", entries[1].UserID)
		assert.Empty(t, entries[2].DeviceToken)
	})

	t.Run("API key replaces the bearer header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "web-api-key", r.URL.Query().Get("key"))
			assert.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		dir := fs.NewRESTDirectory(server.URL, "web-api-key", fs.DefaultFields, server.Client())
		entries, err := dir.List(ctx, dispatch.Credential{Scheme: dispatch.SchemeKey, Token: "server-key"}, 100)

		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Non-success is a directory error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"status":"PERMISSION_DENIED"}}`))
		}))
		defer server.Close()

		dir := fs.NewRESTDirectory(server.URL, "", fs.DefaultFields, server.Client())
		_, err := dir.List(ctx, bearer, 100)

		require.Error(t, err)
		assert.True(t, errors.Is(err, dispatch.ErrDirectory))
		assert.Contains(t, err.Error(), "PERMISSION_DENIED")
	})
}

func TestRESTDirectory_Get(t *testing.T) {
	ctx := context.Background()
	bearer := dispatch.Credential{Scheme: dispatch.SchemeBearer, Token: "ya29.dir"}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/u9":
			_, _ = w.Write([]byte(`{"name":"projects/p/databases/(default)/documents/users/u9","fields":{"role":{"stringValue":"user"}}}`))
		case "/users/u1":
			_, _ = w.Write([]byte(`{"name":"projects/p/databases/(default)/documents/users/u1","fields":{"fcm_token":{"stringValue":"tok-u1"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := fs.NewRESTDirectory(server.URL, "", fs.DefaultFields, server.Client())

	t.Run("Entry with token", func(t *testing.T) {
		entry, err := dir.Get(ctx, bearer, "u1")
		require.NoError(t, err)
		assert.Equal(t, "tok-u1", entry.DeviceToken)
	})

	t.Run("Entry without token", func(t *testing.T) {
		entry, err := dir.Get(ctx, bearer, "u9")
		require.NoError(t, err)
		assert.Equal(t, "u9", entry.UserID)
		assert.Empty(t, entry.DeviceToken)
	})

	t.Run("Unknown user", func(t *testing.T) {
		_, err := dir.Get(ctx, bearer, "ghost")
		require.Error(t, err)
		assert.True(t, errors.Is(err, dispatch.ErrNotFound))
	})
}
