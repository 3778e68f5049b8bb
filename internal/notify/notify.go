// Package notify writes append-only notification records and fans completed
// lifecycle events out to push channels.
package notify

import (
	"context"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
)

// Channel delivers a human-readable push message. Implementations must not
// block; slow transports buffer internally.
type Channel interface {
	Deliver(title, body string)
}

// LogChannel is the default Channel, logging deliveries only.
type LogChannel struct{}

func (LogChannel) Deliver(title, body string) {
	nuts.L.Infof("[Notify] %s: %s", title, body)
}

// Writer appends notification records to per-scope logs and mirrors them to
// registered push channels.
type Writer struct {
	store  store.Client
	events *nuts.EventEmitter
}

// NewWriter creates a writer on the shared store.
func NewWriter(client store.Client) *Writer {
	return &Writer{
		store:  client,
		events: nuts.NewEventEmitter(),
	}
}

// OnDeliver registers a push channel for every pushed notification.
func (w *Writer) OnDeliver(handlerID string, ch Channel) {
	w.events.On("notification.pushed", handlerID, func(args ...interface{}) {
		if len(args) < 2 {
			return
		}
		title, _ := args[0].(string)
		body, _ := args[1].(string)
		ch.Deliver(title, body)
	})
}

// Push appends one record to scope's log. The timestamp is always
// store-assigned; client clocks never enter the feed ordering.
func (w *Writer) Push(ctx context.Context, scope, message, level, typ, refID string) error {
	fields := map[string]any{
		"message": message,
		"level":   level,
		"ts":      store.ServerTimestamp,
	}
	if typ != "" {
		fields["type"] = typ
	}
	if refID != "" {
		fields["refId"] = refID
	}

	id, err := w.store.Append(ctx, store.NotificationsPath(scope), fields)
	if err != nil {
		return err
	}

	nuts.L.Debugf("[Notify] pushed %s to %s (%s)", id, scope, level)
	w.events.Emit("notification.pushed", titleForLevel(level, typ), message)
	return nil
}

func titleForLevel(level, typ string) string {
	switch typ {
	case models.NotifTypeIn:
		return "New operator request"
	case models.NotifTypeAccept:
		return "Request approved"
	case models.NotifTypeReject:
		return "Request rejected"
	}
	switch level {
	case models.LevelError:
		return "HydroGuard error"
	case models.LevelWarn:
		return "HydroGuard warning"
	default:
		return "HydroGuard"
	}
}
