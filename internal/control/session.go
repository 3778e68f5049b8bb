// FilePath: internal/control/session.go
package control

import (
	"context"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/config"
	"github.com/hydroguard/hydroguard/internal/loop"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
)

// Session is the live reconciliation context for one device: its event
// loop, its subscriptions, its reconciler and its decision gate. A session
// is created when a device screen becomes active and closed when it goes
// away; closing detaches every listener and stops the loop.
type Session struct {
	deviceID string
	loop     *loop.Loop
	mgr      *store.SubscriptionManager

	reconciler *Reconciler
	gate       *DecisionGate

	onTelemetry func(store.Document)
}

// NewSession builds a session for deviceID. audit may be nil; p may be nil
// for the logging default.
func NewSession(deviceID string, client store.Client, cfg config.DecisionConfig, p Presenter, audit AuditLog) *Session {
	l := loop.New()
	s := &Session{
		deviceID: deviceID,
		loop:     l,
		mgr:      store.NewSubscriptionManager(client, l),
	}
	s.reconciler = NewReconciler(deviceID, client, l, p)
	s.gate = NewDecisionGate(deviceID, client, l, s.reconciler, cfg, p, audit)
	return s
}

// Start bootstraps the control record and attaches the live control and
// telemetry listeners. Callbacks run on the session loop.
func (s *Session) Start(ctx context.Context) {
	s.reconciler.Bootstrap(ctx)

	s.mgr.Subscribe(s.owner(), store.ControlPath(s.deviceID), store.Handler{
		OnEvent: s.reconciler.HandleRemote,
		OnError: s.reconciler.HandleRemoteError,
	})
	s.mgr.Subscribe(s.owner(), store.TelemetryPath(s.deviceID), store.Handler{
		OnEvent: func(evt store.Event) {
			if s.onTelemetry != nil {
				s.onTelemetry(evt.Doc)
			}
		},
		OnError: func(err error) {
			nuts.L.Warnf("[Session] %s: lost live telemetry: %v", s.deviceID, err)
		},
	})

	nuts.L.Infof("[Session] started for device %s", s.deviceID)
}

// OnTelemetry registers the live telemetry callback. Must be set before
// Start.
func (s *Session) OnTelemetry(fn func(store.Document)) {
	s.onTelemetry = fn
}

// OnControlChange registers the control view callback. Must be set before
// Start.
func (s *Session) OnControlChange(fn func(models.ControlState)) {
	s.reconciler.OnChange(fn)
}

// DeviceID returns the device this session drives.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// State returns a control snapshot, synchronized through the loop.
func (s *Session) State() (models.ControlState, error) {
	var st models.ControlState
	err := s.loop.DispatchWait(func() { st = s.reconciler.State() })
	return st, err
}

// SelectMode applies a mode selection on the loop.
func (s *Session) SelectMode(mode models.Mode) error {
	return s.loop.Dispatch(func() { s.reconciler.SelectMode(mode) })
}

// PumpAction triggers the action button on the loop.
func (s *Session) PumpAction() error {
	return s.loop.Dispatch(func() { s.reconciler.PumpAction() })
}

// RunDecision forces one decision cycle on the loop.
func (s *Session) RunDecision() error {
	return s.loop.Dispatch(func() { s.gate.Run(true) })
}

// Close detaches all listeners and stops the loop. Idempotent through the
// loop's own stop semantics.
func (s *Session) Close() {
	s.mgr.UnsubscribeAll(s.owner())
	s.loop.Stop()
	nuts.L.Infof("[Session] closed for device %s", s.deviceID)
}

func (s *Session) owner() string {
	return "session:" + s.deviceID
}
