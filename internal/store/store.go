// FilePath: internal/store/store.go
package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates that a requested document was not found
var ErrNotFound = errors.New("document not found")

// serverTimestamp is the sentinel resolved to a store-assigned epoch-ms
// timestamp at write time.
type serverTimestamp struct{}

// ServerTimestamp marks a field to be stamped by the store on write, the
// only clock all writers agree on.
var ServerTimestamp = serverTimestamp{}

// EventType classifies a live subscription callback.
type EventType string

const (
	EventAdded   EventType = "added"
	EventChanged EventType = "changed"
	EventRemoved EventType = "removed"
)

// Event is one live-subscription delivery. For child-collection
// subscriptions ID is the store-assigned child id and Doc is the full
// re-read record, never a patch. For value subscriptions ID is empty.
type Event struct {
	Type EventType
	Path string
	ID   string
	Doc  Document
}

// Handler receives subscription callbacks. OnError is invoked at most once
// per subscription; after that the subscription is dead and the owner must
// resubscribe, typically on next session activation.
type Handler struct {
	OnEvent func(Event)
	OnError func(error)
}

// Child is one record in a child-collection snapshot.
type Child struct {
	ID  string
	Doc Document
}

// Subscription is a live listener attached to a path until detached.
type Subscription interface {
	// Detach removes the listener. Idempotent and safe on an already
	// detached subscription.
	Detach()
}

// Client is the path-addressed remote document store. One instance is
// created at startup and injected by reference everywhere; tests substitute
// a fake.
type Client interface {
	// Get reads a single document snapshot. Missing documents return an
	// empty Document and no error; callers that need existence use Has on
	// a required field or check len.
	Get(ctx context.Context, path string) (Document, error)

	// Update applies a partial field update: named fields are written,
	// everything else on the document is preserved. ServerTimestamp values
	// are resolved to the store clock.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Append inserts a child document under path with a store-assigned id
	// and returns that id.
	Append(ctx context.Context, path string, fields map[string]any) (string, error)

	// Children reads a one-shot snapshot of a child collection, oldest
	// first, restricted to children with timestamp >= since. since <= 0
	// reads everything.
	Children(ctx context.Context, path string, since int64) ([]Child, error)

	// Watch attaches a live value subscription to a single document. The
	// current value is delivered first, then every subsequent change.
	Watch(path string, h Handler) (Subscription, error)

	// WatchChildren attaches a live subscription to a child collection.
	// Existing children with timestamp >= since are replayed as added
	// events, then live added/changed/removed events stream in. since <= 0
	// replays everything.
	WatchChildren(path string, since int64, h Handler) (Subscription, error)

	Close() error
}

// Store document paths. One control and one telemetry document per device,
// one profile per account, one append-only notification log per scope.
func ControlPath(deviceID string) string   { return "control/" + deviceID }
func TelemetryPath(deviceID string) string { return "telemetry/" + deviceID + "/latest" }
func UserPath(uid string) string           { return UsersPath + "/" + uid }
func NotificationsPath(scope string) string {
	return "notifications/" + scope
}

const (
	UsersPath = "users"
	SitesPath = "sites"
)
