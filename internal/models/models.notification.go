// FilePath: internal/models/models.notification.go
package models

// Notification levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Notification types: request came in, accepted, rejected.
const (
	NotifTypeIn     = "IN"
	NotifTypeAccept = "ACC"
	NotifTypeReject = "REJECT"
)

// Notification is one append-only record in a notification log. Identity is
// the store-assigned id; the in-memory fold dedupes on it.
type Notification struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
	Type    string `json:"type,omitempty"`
	RefID   string `json:"ref_id,omitempty"`
	TS      int64  `json:"ts"`
}
