package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydroguard/hydroguard/internal/config"
	"github.com/hydroguard/hydroguard/internal/loop"
	"github.com/hydroguard/hydroguard/internal/models"
	"github.com/hydroguard/hydroguard/internal/store"
)

func newTestGate(t *testing.T, endpoint string) (*DecisionGate, *fakeStore, *capturePresenter, *loop.Loop) {
	t.Helper()
	f := newFakeStore()
	l := loop.New()
	t.Cleanup(l.Stop)
	p := newCapturePresenter()

	r := NewReconciler("HG-01", f, l, p)
	g := NewDecisionGate("HG-01", f, l, r, config.DecisionConfig{
		Endpoint: endpoint,
		Timeout:  2 * time.Second,
		Cooldown: 1500 * time.Millisecond,
	}, p, nil)
	return g, f, p, l
}

func runGate(t *testing.T, l *loop.Loop, g *DecisionGate, force bool) {
	t.Helper()
	require.NoError(t, l.DispatchWait(func() { g.Run(force) }))
}

func TestDecisionCycleDryResponse(t *testing.T) {
	var body decisionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pump_status":1,"pump_label":"dry","probability_on":0.2}`))
	}))
	defer srv.Close()

	g, f, _, l := newTestGate(t, srv.URL)
	f.setDoc("telemetry/HG-01/latest", store.Document{
		"hum": 20, "soil": 10, "rain_pct": 5, "bright": false,
	})

	runGate(t, l, g, true)

	call := waitUpdate(t, f)
	assert.Equal(t, "control/HG-01", call.path)
	assert.Equal(t, models.ModeAuto, call.fields["mode"])
	assert.Equal(t, true, call.fields["status"])
	assert.Equal(t, models.UpdatedByAutoDecision, call.fields["updatedBy"])
	assert.Equal(t, labelPumpOn, call.fields["aiLabel"])
	assert.Equal(t, 0.2, call.fields["aiProbabilityOn"])
	assert.Equal(t, http.StatusOK, call.fields["aiHttpCode"])
	assert.Equal(t, srv.URL, call.fields["aiUsedUrl"])
	assert.Equal(t, store.ServerTimestamp, call.fields["aiDecidedAt"])

	assert.Equal(t, 20.0, body.Humidity)
	assert.Equal(t, 10.0, body.SoilMoisture)
	assert.Equal(t, 0, body.Rainfall)
	assert.Equal(t, 0, body.Sunlight)
}

func TestDecisionCycleWetResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body decisionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 45.0, body.Humidity)
		assert.Equal(t, 30.0, body.SoilMoisture)
		assert.Equal(t, 1, body.Rainfall)
		assert.Equal(t, 1, body.Sunlight)

		w.Write([]byte(`{"pump_status":0,"pump_label":"wet","probability_on":0.8}`))
	}))
	defer srv.Close()

	g, f, _, l := newTestGate(t, srv.URL)
	f.setDoc("telemetry/HG-01/latest", store.Document{
		"hum": "45", "soil": 30, "rain_pct": 70, "bright": true,
	})

	runGate(t, l, g, true)

	call := waitUpdate(t, f)
	assert.Equal(t, false, call.fields["status"])
	assert.Equal(t, labelPumpOff, call.fields["aiLabel"])
	assert.Equal(t, 0.8, call.fields["aiProbabilityOn"])
}

func TestDecisionProbabilityBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"probability_on":0.5}`))
	}))
	defer srv.Close()

	g, f, _, l := newTestGate(t, srv.URL)
	f.setDoc("telemetry/HG-01/latest", store.Document{"hum": 50, "soil": 50, "rain_pct": 0})

	runGate(t, l, g, true)

	// Exactly 50 percent is not "below 50": the pump stays off.
	call := waitUpdate(t, f)
	assert.Equal(t, false, call.fields["status"])
	assert.Equal(t, labelPumpOff, call.fields["aiLabel"])
}

func TestDecisionProbabilityFallback(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantProb float64
		wantOn   bool
	}{
		{"pump flag on", `{"pump_status":1}`, 1.0, false},
		{"pump flag off", `{"pump_status":0}`, 0.0, true},
		{"nothing usable", `{}`, 0.5, false},
		{"negative probability", `{"probability_on":-3,"pump_status":1}`, 1.0, false},
		{"garbage body", `not json`, 0.5, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.response))
			}))
			defer srv.Close()

			g, f, _, l := newTestGate(t, srv.URL)
			f.setDoc("telemetry/HG-01/latest", store.Document{"hum": 50, "soil": 50, "rain_pct": 0})

			runGate(t, l, g, true)

			call := waitUpdate(t, f)
			assert.Equal(t, tc.wantProb, call.fields["aiProbabilityOn"])
			assert.Equal(t, tc.wantOn, call.fields["status"])
		})
	}
}

func TestDecisionInFlightExclusion(t *testing.T) {
	var requests atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Write([]byte(`{"probability_on":0.9}`))
	}))
	defer srv.Close()

	g, f, _, l := newTestGate(t, srv.URL)
	f.setDoc("telemetry/HG-01/latest", store.Document{"hum": 50, "soil": 50, "rain_pct": 0})

	runGate(t, l, g, true)
	// Give the first cycle time to reach the backend, then force again.
	time.Sleep(50 * time.Millisecond)
	runGate(t, l, g, true)
	close(release)

	waitUpdate(t, f)
	assertNoUpdate(t, f)
	assert.Equal(t, int64(1), requests.Load())
}

func TestDecisionCooldownThrottlesUnforcedRuns(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"probability_on":0.9}`))
	}))
	defer srv.Close()

	g, f, _, l := newTestGate(t, srv.URL)
	f.setDoc("telemetry/HG-01/latest", store.Document{"hum": 50, "soil": 50, "rain_pct": 0})

	runGate(t, l, g, true)
	waitUpdate(t, f)

	// Within the cooldown an unforced run is dropped, a forced one is not.
	runGate(t, l, g, false)
	assertNoUpdate(t, f)

	runGate(t, l, g, true)
	waitUpdate(t, f)
	assert.Equal(t, int64(2), requests.Load())
}

func TestModeTransitionsDriveDecisionRuns(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"probability_on":0.9}`))
	}))
	defer srv.Close()

	g, f, _, l := newTestGate(t, srv.URL)
	f.setDoc("telemetry/HG-01/latest", store.Document{"hum": 50, "soil": 50, "rain_pct": 0})
	r := g.reconciler

	// Entering auto runs exactly one forced decision: the mode write and
	// the decision write both land, in either order.
	require.NoError(t, l.DispatchWait(func() { r.SelectMode(models.ModeAuto) }))
	waitUpdate(t, f)
	waitUpdate(t, f)
	assert.Equal(t, int64(1), requests.Load())

	// Back in manual, the pump toggle writes state and never reaches the
	// backend.
	require.NoError(t, l.DispatchWait(func() { r.SelectMode(models.ModeManual) }))
	waitUpdate(t, f)
	require.NoError(t, l.DispatchWait(func() { r.PumpAction() }))
	call := waitUpdate(t, f)
	assert.Equal(t, models.UpdatedByLocalManual, call.fields["updatedBy"])
	assertNoUpdate(t, f)
	assert.Equal(t, int64(1), requests.Load())

	// Adopting a remote switch into auto is a pure local update: no write
	// echo and no decision run.
	require.NoError(t, l.DispatchWait(func() {
		r.HandleRemote(store.Event{
			Type: store.EventChanged,
			Path: "control/HG-01",
			Doc:  store.Document{"mode": "auto", "status": true, "updatedBy": "device"},
		})
	}))
	assertNoUpdate(t, f)
	assert.Equal(t, int64(1), requests.Load())

	// In auto mode the action button forces one run instead of toggling.
	require.NoError(t, l.DispatchWait(func() { r.PumpAction() }))
	call = waitUpdate(t, f)
	assert.Equal(t, models.UpdatedByAutoDecision, call.fields["updatedBy"])
	assert.Equal(t, int64(2), requests.Load())
}

func TestDecisionAbortsOnEmptyTelemetry(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	g, f, p, l := newTestGate(t, srv.URL)

	runGate(t, l, g, true)

	select {
	case <-p.errs:
	case <-time.After(time.Second):
		t.Fatal("empty telemetry never reported")
	}
	assertNoUpdate(t, f)
	assert.Equal(t, int64(0), requests.Load())
}

func TestDecisionRejectsInvalidTelemetry(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	g, f, p, l := newTestGate(t, srv.URL)
	f.setDoc("telemetry/HG-01/latest", store.Document{"hum": "NaN", "soil": 50, "rain_pct": 0})

	runGate(t, l, g, true)

	select {
	case <-p.errs:
	case <-time.After(time.Second):
		t.Fatal("invalid telemetry never reported")
	}
	assertNoUpdate(t, f)
	assert.Equal(t, int64(0), requests.Load())
}

func TestDecisionUnconfiguredEndpoint(t *testing.T) {
	g, f, p, l := newTestGate(t, "")

	runGate(t, l, g, true)

	select {
	case msg := <-p.errs:
		assert.Contains(t, msg, "not configured")
	case <-time.After(time.Second):
		t.Fatal("missing endpoint never reported")
	}
	assertNoUpdate(t, f)
}

func TestDecisionRunsAfterCycleError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"probability_on":0.9}`))
	}))
	defer srv.Close()

	g, f, p, l := newTestGate(t, srv.URL)

	// First cycle fails on empty telemetry; the in-flight flag must clear.
	runGate(t, l, g, true)
	<-p.errs

	f.setDoc("telemetry/HG-01/latest", store.Document{"hum": 50, "soil": 50, "rain_pct": 0})
	runGate(t, l, g, true)
	waitUpdate(t, f)
}
