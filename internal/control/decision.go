// FilePath: internal/control/decision.go
package control

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/config"
	apperrors "github.com/hydroguard/hydroguard/internal/errors"
	"github.com/hydroguard/hydroguard/internal/loop"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
	"github.com/hydroguard/hydroguard/internal/telemetry"
)

const (
	labelPumpOn  = "Tanah kering, perlu disiram"
	labelPumpOff = "Tanah lembab, tidak perlu disiram"
)

// AuditLog records completed decision cycles. Best effort: a failed insert
// never affects the decision outcome.
type AuditLog interface {
	Record(ctx context.Context, rec models.DecisionRecord) error
}

// decisionRequest is the prediction backend's expected payload.
type decisionRequest struct {
	Humidity     float64 `json:"Humidity"`
	Rainfall     int     `json:"Rainfall"`
	Sunlight     int     `json:"Sunlight"`
	SoilMoisture float64 `json:"Soil_Moisture"`
}

// DecisionOutcome is one completed decision cycle as adopted by the
// reconciler and persisted with the control record.
type DecisionOutcome struct {
	PumpOn        bool
	Label         string
	ProbabilityOn float64
	HTTPCode      int
	UsedURL       string
	Snapshot      telemetry.Snapshot
}

// DecisionGate runs the automatic irrigation decision cycle for one device:
// read the latest telemetry snapshot, call the prediction backend, apply the
// watering policy and hand the outcome to the reconciler.
//
// Run executes on the session loop; only the telemetry read and the backend
// call happen off-loop, and completion is dispatched back. At most one cycle
// is in flight per device, and non-forced runs are additionally throttled by
// the cooldown.
type DecisionGate struct {
	deviceID   string
	store      store.Client
	loop       *loop.Loop
	reconciler *Reconciler
	presenter  Presenter
	audit      AuditLog

	client   *resty.Client
	endpoint string
	cooldown time.Duration

	inFlight bool
	lastRun  time.Time
}

// NewDecisionGate wires a gate to its reconciler. audit may be nil.
func NewDecisionGate(deviceID string, client store.Client, l *loop.Loop, r *Reconciler, cfg config.DecisionConfig, p Presenter, audit AuditLog) *DecisionGate {
	if p == nil {
		p = LogPresenter{}
	}
	g := &DecisionGate{
		deviceID:   deviceID,
		store:      client,
		loop:       l,
		reconciler: r,
		presenter:  p,
		audit:      audit,
		client:     resty.New().SetTimeout(cfg.Timeout),
		endpoint:   cfg.Endpoint,
		cooldown:   cfg.Cooldown,
	}
	r.SetGate(g)
	return g
}

// Run starts one decision cycle if the guards pass. Guard order matters: an
// in-flight cycle wins over everything, a missing endpoint is reported even
// on forced runs, and the cooldown only throttles non-forced runs.
func (g *DecisionGate) Run(force bool) {
	if g.inFlight {
		nuts.L.Debugf("[DecisionGate] %s: cycle already in flight, skipping", g.deviceID)
		return
	}

	if g.endpoint == "" {
		g.presenter.Error("automatic watering is not configured",
			apperrors.NewConfigError("decision endpoint is not set", nil))
		return
	}
	if err := config.ValidateDecisionEndpoint(g.endpoint); err != nil {
		g.presenter.Error("automatic watering is not configured",
			apperrors.NewConfigError("decision endpoint is invalid", err))
		return
	}

	now := time.Now()
	if !force && now.Sub(g.lastRun) < g.cooldown {
		nuts.L.Debugf("[DecisionGate] %s: cooldown active, skipping", g.deviceID)
		return
	}

	g.lastRun = now
	g.inFlight = true
	g.presenter.Info("checking soil condition...")

	go g.cycle()
}

// cycle is the off-loop part: telemetry read, backend call, policy. Every
// exit path funnels through finish so the in-flight flag is always cleared
// on the loop.
func (g *DecisionGate) cycle() {
	ctx := context.Background()

	doc, err := g.store.Get(ctx, store.TelemetryPath(g.deviceID))
	if err != nil {
		g.finish(nil, apperrors.NewStoreError("failed to read telemetry", err))
		return
	}

	snap, err := telemetry.Extract(doc)
	if err != nil {
		g.finish(nil, apperrors.NewValidationError("telemetry is unusable", err))
		return
	}

	resp, err := g.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(decisionRequest{
			Humidity:     snap.Humidity,
			Rainfall:     snap.RainBin,
			Sunlight:     snap.SunlightBin,
			SoilMoisture: snap.SoilMoisture,
		}).
		Post(g.endpoint)
	if err != nil {
		g.finish(nil, apperrors.NewDecisionError("prediction backend unreachable", err))
		return
	}

	out := g.evaluate(snap, resp)
	g.finish(&out, nil)
}

// evaluate parses the backend response permissively and applies the
// watering policy. The body is parsed on any HTTP status; backends report
// usable predictions alongside non-200 codes.
func (g *DecisionGate) evaluate(snap telemetry.Snapshot, resp *resty.Response) DecisionOutcome {
	var raw map[string]any
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		nuts.L.Warnf("[DecisionGate] %s: unparseable response body (http %d): %v",
			g.deviceID, resp.StatusCode(), err)
		raw = map[string]any{}
	}
	doc := store.Document(raw)

	prob := doc.FloatAny(math.NaN(), "probability_on")
	if math.IsNaN(prob) || math.IsInf(prob, 0) || prob < 0 {
		// Fall back to the plain pump flag when the backend does not
		// report a probability; with neither, stay on the fence.
		if ps := doc.FloatAny(-1, "pump_status"); ps == 0 || ps == 1 {
			prob = ps
		} else {
			prob = 0.5
		}
	}

	percent := prob * 100
	pumpOn := percent < 50

	label := labelPumpOff
	if pumpOn {
		label = labelPumpOn
	}

	return DecisionOutcome{
		PumpOn:        pumpOn,
		Label:         label,
		ProbabilityOn: prob,
		HTTPCode:      resp.StatusCode(),
		UsedURL:       g.endpoint,
		Snapshot:      snap,
	}
}

// finish dispatches the cycle result back onto the loop. Exactly one of out
// and err is set.
func (g *DecisionGate) finish(out *DecisionOutcome, err error) {
	derr := g.loop.Dispatch(func() {
		g.inFlight = false
		if err != nil {
			g.presenter.Error("automatic watering decision failed", err)
			return
		}
		g.reconciler.applyDecision(*out)
		g.presenter.Info(out.Label)
		g.record(*out)
	})
	if derr != nil {
		// Loop stopped mid-cycle; the session is gone, nothing to adopt.
		nuts.L.Debugf("[DecisionGate] %s: discarding cycle result after loop stop", g.deviceID)
	}
}

// record persists the cycle to the audit log, off-loop and best effort.
func (g *DecisionGate) record(out DecisionOutcome) {
	if g.audit == nil {
		return
	}
	rec := models.DecisionRecord{
		DeviceID:      g.deviceID,
		Humidity:      out.Snapshot.Humidity,
		SoilMoisture:  out.Snapshot.SoilMoisture,
		RainPct:       out.Snapshot.RainPct,
		RainBin:       out.Snapshot.RainBin,
		SunlightBin:   out.Snapshot.SunlightBin,
		HTTPCode:      out.HTTPCode,
		ProbabilityOn: out.ProbabilityOn,
		Label:         out.Label,
		PumpOn:        out.PumpOn,
		Endpoint:      out.UsedURL,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.audit.Record(ctx, rec); err != nil {
			nuts.L.Warnf("[DecisionGate] %s: audit insert failed: %v", g.deviceID, err)
		}
	}()
}
