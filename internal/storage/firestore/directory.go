package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// Fields names the document fields holding the role and the device token.
type Fields struct {
	Collection string
	Role       string
	Token      string
}

// DefaultFields matches the users collection written by the mobile client.
var DefaultFields = Fields{Collection: "users", Role: "role", Token: "fcm_token"}

// DirectoryStore implements dispatch.Directory on the Cloud Firestore SDK.
// The SDK authenticates itself, so the request credential is unused.
type DirectoryStore struct {
	client *firestore.Client
	fields Fields
}

func NewDirectoryStore(client *firestore.Client, fields Fields) *DirectoryStore {
	return &DirectoryStore{client: client, fields: fields}
}

func (s *DirectoryStore) List(ctx context.Context, _ dispatch.Credential, pageSize int) ([]dispatch.DirectoryEntry, error) {
	iter := s.client.Collection(s.fields.Collection).Limit(pageSize).Documents(ctx)
	defer iter.Stop()

	entries := make([]dispatch.DirectoryEntry, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: firestore iteration failed: %v", dispatch.ErrDirectory, err)
		}
		entries = append(entries, s.toEntry(doc))
	}
	return entries, nil
}

func (s *DirectoryStore) Get(ctx context.Context, _ dispatch.Credential, userID string) (*dispatch.DirectoryEntry, error) {
	ref := s.client.Collection(s.fields.Collection).Doc(userID)
	if ref == nil {
		return nil, fmt.Errorf("%w: invalid user id %q", dispatch.ErrNotFound, userID)
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: user %s", dispatch.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("%w: firestore get failed: %v", dispatch.ErrDirectory, err)
	}
	entry := s.toEntry(doc)
	return &entry, nil
}

// toEntry reads string fields leniently; a wrongly typed field reads as empty.
func (s *DirectoryStore) toEntry(doc *firestore.DocumentSnapshot) dispatch.DirectoryEntry {
	return dispatch.DirectoryEntry{
		UserID:      doc.Ref.ID,
		Role:        stringField(doc, s.fields.Role),
		DeviceToken: stringField(doc, s.fields.Token),
	}
}

func stringField(doc *firestore.DocumentSnapshot, name string) string {
	v, err := doc.DataAt(name)
	if err != nil {
		return ""
	}
	str, _ := v.(string)
	return str
}

var _ dispatch.Directory = (*DirectoryStore)(nil)

