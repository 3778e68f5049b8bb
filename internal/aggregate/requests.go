// FilePath: internal/aggregate/requests.go
package aggregate

import (
	"sort"
	"strings"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/config"
	"github.com/hydroguard/hydroguard/internal/loop"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
)

// BoardView is one rendered operator request board: today's activity and
// older entries, both newest first, plus the live pending count.
type BoardView struct {
	Today        []models.OperatorRequest `json:"today"`
	Earlier      []models.OperatorRequest `json:"earlier"`
	PendingCount int                      `json:"pending_count"`
}

// RequestBoard folds the users collection into the admin's operator request
// board. Approving or rejecting does not remove an entry, it re-derives its
// status and re-sorts it by activity time. All methods run on the session
// loop.
type RequestBoard struct {
	loop *loop.Loop
	zone *time.Location

	byUID    map[string]models.OperatorRequest
	render   debouncer
	onRender func(BoardView)

	now func() time.Time
}

// NewRequestBoard creates a board rendering onto fn after each debounced
// fold change.
func NewRequestBoard(l *loop.Loop, cfg config.FeedConfig, fn func(BoardView)) *RequestBoard {
	b := &RequestBoard{
		loop:     l,
		zone:     DisplayZone(cfg),
		byUID:    make(map[string]models.OperatorRequest),
		onRender: fn,
		now:      time.Now,
	}
	b.render = debouncer{loop: l, delay: cfg.RenderDelay, fire: b.renderNow}
	return b
}

// HandleEvent applies one users-collection event to the fold. Admin profiles
// are not requests and never enter the board.
func (b *RequestBoard) HandleEvent(evt store.Event) {
	if evt.ID == "" {
		return
	}

	switch evt.Type {
	case store.EventRemoved:
		if _, ok := b.byUID[evt.ID]; !ok {
			return
		}
		delete(b.byUID, evt.ID)
	default:
		req := RequestFromDoc(evt.ID, evt.Doc, b.now().UnixMilli())
		if req.Role == models.RoleAdmin {
			return
		}
		b.byUID[evt.ID] = req
	}

	b.render.kick()
}

// HandleError reports a dead board subscription and renders what is already
// folded.
func (b *RequestBoard) HandleError(err error) {
	nuts.L.Warnf("[RequestBoard] lost live operator requests: %v", err)
	b.render.kick()
}

func (b *RequestBoard) renderNow() {
	startToday := StartOfDay(b.now().In(b.zone)).UnixMilli()

	view := BoardView{}
	for _, req := range b.byUID {
		if req.Status == models.StatusPending {
			view.PendingCount++
		}
		if req.ActivityAt >= startToday {
			view.Today = append(view.Today, req)
		} else {
			view.Earlier = append(view.Earlier, req)
		}
	}
	sortRequestsDesc(view.Today)
	sortRequestsDesc(view.Earlier)

	if b.onRender != nil {
		b.onRender(view)
	}
}

func sortRequestsDesc(rs []models.OperatorRequest) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].ActivityAt != rs[j].ActivityAt {
			return rs[i].ActivityAt > rs[j].ActivityAt
		}
		return rs[i].UID > rs[j].UID
	})
}

// RequestFromDoc folds one raw user profile into a request entry. Legacy
// profiles spell fields several ways and may lack the status field entirely,
// so status and activity time are derived, never trusted blindly.
func RequestFromDoc(uid string, doc store.Document, nowMs int64) models.OperatorRequest {
	req := models.OperatorRequest{
		UID:   uid,
		Name:  doc.StringAny("", "name", "nama", "fullName", "full_name"),
		Email: doc.StringAny("", "email"),
		Phone: doc.StringAny("", "phone", "no_hp", "noHp"),
		Role:  doc.StringAny(models.RoleOperator, "role"),

		Approved:    doc.BoolLike("approved"),
		HasApproved: doc.Has("approved"),
		RawStatus:   doc.StringAny("", "status"),
		CreatedAt:   doc.Int64Any(0, "createdAt", "created_at", "ts"),
		ApprovedAt:  doc.Int64Any(0, "approvedAt", "approved_at"),
		RejectedAt:  doc.Int64Any(0, "rejectedAt", "rejected_at"),
	}

	req.Status = DeriveStatus(req)
	req.ActivityAt = DeriveActivityAt(req, nowMs)
	return req
}

// DeriveStatus resolves the request lifecycle status. An explicit status
// field wins; otherwise the decision timestamps speak, then the legacy
// approved flag. Anything else is pending.
func DeriveStatus(req models.OperatorRequest) models.RequestStatus {
	switch strings.ToLower(req.RawStatus) {
	case string(models.StatusApproved):
		return models.StatusApproved
	case string(models.StatusRejected):
		return models.StatusRejected
	}
	if req.RejectedAt > 0 {
		return models.StatusRejected
	}
	if req.ApprovedAt > 0 {
		return models.StatusApproved
	}
	if req.HasApproved && req.Approved {
		return models.StatusApproved
	}
	return models.StatusPending
}

// DeriveActivityAt picks the newest lifecycle timestamp, falling back to now
// so a record without any timestamp sorts to the top instead of to 1970.
func DeriveActivityAt(req models.OperatorRequest, nowMs int64) int64 {
	at := req.CreatedAt
	if req.ApprovedAt > at {
		at = req.ApprovedAt
	}
	if req.RejectedAt > at {
		at = req.RejectedAt
	}
	if at <= 0 {
		return nowMs
	}
	return at
}
