package dispatch

import (
	"encoding/json"
	"fmt"
)

// RequestType selects the audience of a notification.
type RequestType string

const (
	// ToAdmins broadcasts to every directory entry holding the privileged role.
	ToAdmins RequestType = "to_admins"
	// ToUser targets exactly one directory entry.
	ToUser RequestType = "to_user"
)

// NotificationRequest is the inbound payload describing one push notification.
type NotificationRequest struct {
	Type     RequestType `json:"type"`
	Title    string      `json:"title"`
	Body     string      `json:"body"`
	ReportID string      `json:"reportId"`
	UserID   string      `json:"userId,omitempty"`
}

// Result is the aggregate outcome of one fan-out.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Validate checks that every required field is present.
func (r *NotificationRequest) Validate() error {
	if r.Type == "" || r.Title == "" || r.Body == "" || r.ReportID == "" {
		return fmt.Errorf("%w: Missing required fields", ErrInvalidRequest)
	}
	switch r.Type {
	case ToAdmins:
	case ToUser:
		if r.UserID == "" {
			return fmt.Errorf("%w: userId required for to_user type", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidRequest, r.Type)
	}
	return nil
}

// DecodeRequest parses and validates a raw JSON payload.
func DecodeRequest(payload []byte) (*NotificationRequest, error) {
	var req NotificationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: malformed json: %v", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}
