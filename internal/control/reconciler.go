// FilePath: internal/control/reconciler.go
package control

import (
	"context"
	"strings"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/loop"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
)

// Presenter receives user-visible outcomes from the control components:
// decision results, write failures, policy messages. The app wires it to
// the notification channel; tests capture it directly.
type Presenter interface {
	Info(message string)
	Error(message string, err error)
}

// LogPresenter is the default Presenter, logging outcomes only.
type LogPresenter struct{}

func (LogPresenter) Info(message string) {
	nuts.L.Infof("[Control] %s", message)
}

func (LogPresenter) Error(message string, err error) {
	nuts.L.Errorf("[Control] %s: %v", message, err)
}

// Reconciler maintains the local optimistic view of one device's control
// record and keeps it convergent with the authoritative remote value, which
// is written concurrently by other clients and by the device itself.
//
// All methods run on the session loop; the only off-loop work is the store
// write itself, whose failure is dispatched back onto the loop.
type Reconciler struct {
	deviceID  string
	store     store.Client
	loop      *loop.Loop
	presenter Presenter

	state models.ControlState

	// suppressWrite is set while adopting a remote update so that the
	// mode adoption does not itself write back to the store. Without it
	// two clients echoing each other's updates loop forever.
	suppressWrite bool

	// gate is triggered on every transition into auto mode.
	gate *DecisionGate

	onChange func(models.ControlState)
}

// NewReconciler creates a reconciler for one device.
func NewReconciler(deviceID string, client store.Client, l *loop.Loop, p Presenter) *Reconciler {
	if p == nil {
		p = LogPresenter{}
	}
	return &Reconciler{
		deviceID:  deviceID,
		store:     client,
		loop:      l,
		presenter: p,
		state: models.ControlState{
			DeviceID: deviceID,
			Mode:     models.ModeManual,
		},
	}
}

// SetGate wires the decision gate. Separate from the constructor because
// the gate needs the reconciler's write path in turn.
func (r *Reconciler) SetGate(g *DecisionGate) {
	r.gate = g
}

// OnChange registers the view callback invoked after every state change.
func (r *Reconciler) OnChange(fn func(models.ControlState)) {
	r.onChange = fn
}

// State returns the current local view.
func (r *Reconciler) State() models.ControlState {
	return r.state
}

// Bootstrap lazily creates the control record with defaults on first
// read-if-absent. Runs off-loop (single-value read); completion needs no
// state, so nothing is dispatched back.
func (r *Reconciler) Bootstrap(ctx context.Context) {
	go func() {
		doc, err := r.store.Get(ctx, store.ControlPath(r.deviceID))
		if err != nil {
			nuts.L.Warnf("[Reconciler] bootstrap read failed for %s: %v", r.deviceID, err)
			return
		}
		if len(doc) > 0 {
			return
		}
		err = r.store.Update(ctx, store.ControlPath(r.deviceID), map[string]any{
			"mode":      models.ModeManual,
			"status":    false,
			"updatedBy": models.UpdatedByBootstrap,
			"updatedAt": store.ServerTimestamp,
		})
		if err != nil {
			nuts.L.Warnf("[Reconciler] bootstrap write failed for %s: %v", r.deviceID, err)
		}
	}()
}

// SelectMode applies a user mode selection. The local view updates
// immediately; the remote write carries only the touched fields. Entering
// auto triggers exactly one forced decision run. During remote adoption the
// suppression flag turns this into a pure local update.
func (r *Reconciler) SelectMode(mode models.Mode) {
	r.state.Mode = mode
	r.notify()

	if r.suppressWrite {
		return
	}

	updatedBy := models.UpdatedByLocalManual
	if mode == models.ModeAuto {
		updatedBy = models.UpdatedByLocalAuto
	}
	r.write("failed to save mode", map[string]any{
		"mode":      mode,
		"updatedBy": updatedBy,
		"updatedAt": store.ServerTimestamp,
	})

	if mode == models.ModeAuto && r.gate != nil {
		r.gate.Run(true)
	}
}

// PumpAction handles the action button. In manual mode it flips the pump
// optimistically and persists the new state; in auto mode it forces a
// decision run and leaves the pump alone (the decision is remote-sourced).
func (r *Reconciler) PumpAction() {
	if r.state.Mode != models.ModeManual {
		if r.gate != nil {
			r.gate.Run(true)
		}
		return
	}

	r.state.PumpOn = !r.state.PumpOn
	r.notify()
	r.write("failed to save pump state", map[string]any{
		"mode":      models.ModeManual,
		"status":    r.state.PumpOn,
		"updatedBy": models.UpdatedByLocalManual,
		"updatedAt": store.ServerTimestamp,
	})
}

// HandleRemote adopts a remote control-record update verbatim. The local
// view converges to whatever was last written by any writer; the
// suppression flag keeps the mode adoption from echoing a write back.
func (r *Reconciler) HandleRemote(evt store.Event) {
	doc := evt.Doc
	if doc == nil {
		return
	}

	r.state.PumpOn = doc.BoolLike("status")

	if mode := doc.StringAny("", "mode"); mode != "" {
		r.suppressWrite = true
		r.SelectMode(parseMode(mode))
		r.suppressWrite = false
	}

	r.state.UpdatedBy = doc.StringAny(r.state.UpdatedBy, "updatedBy")
	if at := doc.Int64Any(0, "updatedAt"); at > 0 {
		r.state.UpdatedAt = time.UnixMilli(at).UTC()
	}
	if label := doc.StringAny("", "aiLabel"); label != "" {
		r.state.Decision = &models.DecisionInfo{
			Label:         label,
			ProbabilityOn: doc.FloatAny(0, "aiProbabilityOn"),
			HTTPCode:      int(doc.Int64Any(0, "aiHttpCode")),
			UsedURL:       doc.StringAny("", "aiUsedUrl"),
		}
		if at := doc.Int64Any(0, "aiDecidedAt"); at > 0 {
			r.state.Decision.DecidedAt = time.UnixMilli(at).UTC()
		}
	}

	r.notify()
}

// HandleRemoteError reports a failed control subscription. No retry; the
// local view simply goes stale until the session resubscribes.
func (r *Reconciler) HandleRemoteError(err error) {
	r.presenter.Error("lost live control updates", err)
}

// applyDecision adopts a completed automatic decision and persists it with
// its provenance through the shared partial-update write path.
func (r *Reconciler) applyDecision(out DecisionOutcome) {
	r.state.Mode = models.ModeAuto
	r.state.PumpOn = out.PumpOn
	r.state.Decision = &models.DecisionInfo{
		Label:         out.Label,
		ProbabilityOn: out.ProbabilityOn,
		HTTPCode:      out.HTTPCode,
		UsedURL:       out.UsedURL,
		DecidedAt:     time.Now().UTC(),
	}
	r.notify()

	r.write("failed to save decision", map[string]any{
		"mode":            models.ModeAuto,
		"status":          out.PumpOn,
		"updatedBy":       models.UpdatedByAutoDecision,
		"updatedAt":       store.ServerTimestamp,
		"aiLabel":         out.Label,
		"aiProbabilityOn": out.ProbabilityOn,
		"aiHttpCode":      out.HTTPCode,
		"aiUsedUrl":       out.UsedURL,
		"aiDecidedAt":     store.ServerTimestamp,
	})
}

// write issues a partial field update off-loop. A failed write is reported
// once and the optimistic local state is intentionally left ahead of the
// store until the next remote update arrives.
func (r *Reconciler) write(failMsg string, fields map[string]any) {
	go func() {
		err := r.store.Update(context.Background(), store.ControlPath(r.deviceID), fields)
		if err == nil {
			return
		}
		if derr := r.loop.Dispatch(func() { r.presenter.Error(failMsg, err) }); derr != nil {
			nuts.L.Errorf("[Reconciler] %s: %v", failMsg, err)
		}
	}()
}

func (r *Reconciler) notify() {
	if r.onChange != nil {
		r.onChange(r.state)
	}
}

func parseMode(raw string) models.Mode {
	if strings.EqualFold(raw, string(models.ModeManual)) {
		return models.ModeManual
	}
	return models.ModeAuto
}
