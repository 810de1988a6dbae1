package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

// DefaultRESTBaseURL is the Firestore REST documents root; %s is the project id.
const DefaultRESTBaseURL = "https://firestore.googleapis.com/v1/projects/%s/databases/(default)/documents"

// RESTDirectory implements dispatch.Directory on the Firestore REST API.
// Requests authenticate with the API key when one is set, otherwise with the
// request's bearer credential.
type RESTDirectory struct {
	baseURL    string
	apiKey     string
	fields     Fields
	httpClient *http.Client
}

func NewRESTDirectory(baseURL, apiKey string, fields Fields, httpClient *http.Client) *RESTDirectory {
	return &RESTDirectory{
		baseURL:    baseURL,
		apiKey:     apiKey,
		fields:     fields,
		httpClient: httpClient,
	}
}

// restValue is a Firestore typed value; only strings are read.
type restValue struct {
	StringValue *string `json:"stringValue,omitempty"`
}

type restDocument struct {
	Name   string               `json:"name"`
	Fields map[string]restValue `json:"fields"`
}

type restListResponse struct {
	Documents []restDocument `json:"documents"`
}

func (d *RESTDirectory) List(ctx context.Context, cred dispatch.Credential, pageSize int) ([]dispatch.DirectoryEntry, error) {
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(pageSize))

	var list restListResponse
	if err := d.getJSON(ctx, cred, d.fields.Collection, query, &list); err != nil {
		return nil, err
	}

	entries := make([]dispatch.DirectoryEntry, 0, len(list.Documents))
	for _, doc := range list.Documents {
		entries = append(entries, d.toEntry(doc))
	}
	return entries, nil
}

func (d *RESTDirectory) Get(ctx context.Context, cred dispatch.Credential, userID string) (*dispatch.DirectoryEntry, error) {
	var doc restDocument
	if err := d.getJSON(ctx, cred, d.fields.Collection+"/"+url.PathEscape(userID), url.Values{}, &doc); err != nil {
		return nil, err
	}
	entry := d.toEntry(doc)
	if entry.UserID == "" {
		entry.UserID = userID
	}
	return &entry, nil
}

func (d *RESTDirectory) getJSON(ctx context.Context, cred dispatch.Credential, relPath string, query url.Values, dest any) error {
	if d.apiKey != "" {
		query.Set("key", d.apiKey)
	}
	target := d.baseURL + "/" + relPath
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", dispatch.ErrDirectory, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey == "" && cred.IsBearer() {
		req.Header.Set("Authorization", cred.AuthorizationHeader())
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %v", dispatch.ErrDirectory, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", dispatch.ErrNotFound, relPath)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status=%d, body=%s", dispatch.ErrDirectory, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", dispatch.ErrDirectory, err)
	}
	return nil
}

func (d *RESTDirectory) toEntry(doc restDocument) dispatch.DirectoryEntry {
	entry := dispatch.DirectoryEntry{}
	if doc.Name != "" {
		entry.UserID = path.Base(doc.Name)
	}
	if v, ok := doc.Fields[d.fields.Role]; ok && v.StringValue != nil {
		entry.Role = *v.StringValue
	}
	if v, ok := doc.Fields[d.fields.Token]; ok && v.StringValue != nil {
		entry.DeviceToken = *v.StringValue
	}
	return entry
}

var _ dispatch.Directory = (*RESTDirectory)(nil)
