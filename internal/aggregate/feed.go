// Package aggregate folds live child-collection events into rendered list
// views: the notification feed and the operator request board. Folds are
// id-keyed so replayed or duplicated deliveries collapse, and every render
// is a wholesale recompute from the fold, never an incremental patch.
package aggregate

import (
	"sort"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/config"
	"github.com/hydroguard/hydroguard/internal/loop"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
)

// debouncer coalesces bursts of fold updates into one render. kick and the
// fire callback both run on the session loop; only the timer goroutine is
// outside, and it immediately dispatches back.
type debouncer struct {
	loop    *loop.Loop
	delay   time.Duration
	pending bool
	fire    func()
}

func (d *debouncer) kick() {
	if d.pending {
		return
	}
	d.pending = true
	time.AfterFunc(d.delay, func() {
		err := d.loop.Dispatch(func() {
			d.pending = false
			d.fire()
		})
		if err != nil {
			nuts.L.Debugf("[Aggregate] dropping render after loop stop")
		}
	})
}

// FeedView is one rendered notification feed: today's entries and the rest
// of the window, both newest first.
type FeedView struct {
	Today  []models.Notification `json:"today"`
	Window []models.Notification `json:"window"`
}

// NotificationFeed folds a scope's append-only notification log into a
// bucketed view. All methods run on the session loop.
type NotificationFeed struct {
	loop *loop.Loop
	zone *time.Location

	byID     map[string]models.Notification
	render   debouncer
	onRender func(FeedView)

	now func() time.Time
}

// NewNotificationFeed creates a feed rendering onto fn after each debounced
// fold change.
func NewNotificationFeed(l *loop.Loop, cfg config.FeedConfig, fn func(FeedView)) *NotificationFeed {
	f := &NotificationFeed{
		loop:     l,
		zone:     DisplayZone(cfg),
		byID:     make(map[string]models.Notification),
		onRender: fn,
		now:      time.Now,
	}
	f.render = debouncer{loop: l, delay: cfg.RenderDelay, fire: f.renderNow}
	return f
}

// HandleEvent applies one child event to the fold. Records without a usable
// timestamp are skipped; a removal deletes by id regardless of payload.
func (f *NotificationFeed) HandleEvent(evt store.Event) {
	if evt.ID == "" {
		return
	}

	switch evt.Type {
	case store.EventRemoved:
		if _, ok := f.byID[evt.ID]; !ok {
			return
		}
		delete(f.byID, evt.ID)
	default:
		n := notificationFromDoc(evt.ID, evt.Doc)
		if n.TS <= 0 {
			return
		}
		f.byID[evt.ID] = n
	}

	f.render.kick()
}

// HandleError reports a dead feed subscription and renders what is already
// folded. The owner resubscribes on next activation.
func (f *NotificationFeed) HandleError(err error) {
	nuts.L.Warnf("[Feed] lost live notifications: %v", err)
	f.render.kick()
}

// renderNow recomputes both buckets from the fold.
func (f *NotificationFeed) renderNow() {
	startToday := StartOfDay(f.now().In(f.zone)).UnixMilli()

	view := FeedView{}
	for _, n := range f.byID {
		if n.TS >= startToday {
			view.Today = append(view.Today, n)
		} else {
			view.Window = append(view.Window, n)
		}
	}
	sortNotificationsDesc(view.Today)
	sortNotificationsDesc(view.Window)

	if f.onRender != nil {
		f.onRender(view)
	}
}

func sortNotificationsDesc(ns []models.Notification) {
	// Ties break on id so equal-timestamp renders do not flicker.
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].TS != ns[j].TS {
			return ns[i].TS > ns[j].TS
		}
		return ns[i].ID > ns[j].ID
	})
}

func notificationFromDoc(id string, doc store.Document) models.Notification {
	return models.Notification{
		ID:      id,
		Message: doc.StringAny("", "message", "msg", "text"),
		Level:   doc.StringAny(models.LevelInfo, "level"),
		Type:    doc.StringAny("", "type"),
		RefID:   doc.StringAny("", "refId", "ref_id"),
		TS:      doc.Int64Any(0, "ts", "timestamp", "createdAt"),
	}
}

// WindowSince returns the epoch-ms lower bound of the feed window: the start
// of the day (cfg.WindowDays - 1) days ago in the display zone. Used as the
// replay bound when subscribing; older records are excluded at the source.
func WindowSince(cfg config.FeedConfig, now time.Time) int64 {
	loc := DisplayZone(cfg)
	days := cfg.WindowDays
	if days < 1 {
		days = 1
	}
	return StartOfDay(now.In(loc).AddDate(0, 0, -(days - 1))).UnixMilli()
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DisplayZone resolves the configured display timezone, falling back to UTC
// on an unknown name.
func DisplayZone(cfg config.FeedConfig) *time.Location {
	loc, err := time.LoadLocation(cfg.DisplayZone)
	if err != nil {
		nuts.L.Warnf("[Aggregate] unknown display zone %q, using UTC", cfg.DisplayZone)
		return time.UTC
	}
	return loc
}
