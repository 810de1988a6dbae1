// --- File: internal/storage/cache/directory.go ---
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or a specific error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedDirectory is a Decorator that adds Read-Aside caching to any Directory.
type CachedDirectory struct {
	realDirectory dispatch.Directory
	cache         CacheClient
	ttl           time.Duration
}

// NewCachedDirectory creates the decorator.
func NewCachedDirectory(realDirectory dispatch.Directory, cache CacheClient, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		realDirectory: realDirectory,
		cache:         cache,
		ttl:           ttl,
	}
}

func (d *CachedDirectory) List(ctx context.Context, cred dispatch.Credential, pageSize int) ([]dispatch.DirectoryEntry, error) {
	key := d.pageKey(pageSize)

	var cached []dispatch.DirectoryEntry
	if err := d.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := d.realDirectory.List(ctx, cred, pageSize)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization; a Redis outage just means every read hits the directory.
	_ = d.cache.Set(ctx, key, fresh, d.ttl)
	return fresh, nil
}

func (d *CachedDirectory) Get(ctx context.Context, cred dispatch.Credential, userID string) (*dispatch.DirectoryEntry, error) {
	key := d.userKey(userID)

	var cached dispatch.DirectoryEntry
	if err := d.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	fresh, err := d.realDirectory.Get(ctx, cred, userID)
	if err != nil {
		return nil, err
	}

	_ = d.cache.Set(ctx, key, fresh, d.ttl)
	return fresh, nil
}

func (d *CachedDirectory) pageKey(pageSize int) string {
	return fmt.Sprintf("bridge:directory:page:%d", pageSize)
}

func (d *CachedDirectory) userKey(userID string) string {
	return fmt.Sprintf("bridge:directory:user:%s", userID)
}

var _ dispatch.Directory = (*CachedDirectory)(nil)
