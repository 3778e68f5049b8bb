// FilePath: api/resources/api.resource.control.go
package resources

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/app"
	"github.com/hydroguard/hydroguard/internal/errors"
	"github.com/hydroguard/hydroguard/internal/models"
)

type ControlHandlers struct {
	app *app.Service
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// @Summary Get the control state of a device
// @Tags control
// @Produce json
// @Success 200 {object} models.ControlState
// @Router /control/{deviceId} [get]
func (h *ControlHandlers) GetState(w http.ResponseWriter, r *http.Request) {
	sess := h.app.Session(r.Context(), mux.Vars(r)["deviceId"])

	state, err := sess.State()
	if err != nil {
		respondWithError(w, errors.NewInternalError("control session unavailable", err))
		return
	}

	respondWithJSON(w, http.StatusOK, state)
}

// @Summary Select the pump control mode
// @Description Switching into auto triggers one forced decision run
// @Tags control
// @Accept json
// @Produce json
// @Success 202 {object} map[string]string
// @Router /control/{deviceId}/mode [post]
func (h *ControlHandlers) SelectMode(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	var mode models.Mode
	switch strings.ToLower(req.Mode) {
	case string(models.ModeManual):
		mode = models.ModeManual
	case string(models.ModeAuto):
		mode = models.ModeAuto
	default:
		respondWithError(w, errors.NewValidationError("mode must be manual or auto", nil).WithRequestID(requestID))
		return
	}

	sess := h.app.Session(r.Context(), mux.Vars(r)["deviceId"])
	if err := sess.SelectMode(mode); err != nil {
		respondWithError(w, errors.NewInternalError("control session unavailable", err))
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{"mode": string(mode)})
}

// @Summary Trigger the pump action button
// @Description Toggles the pump in manual mode, forces a decision run in auto
// @Tags control
// @Produce json
// @Success 202 {object} map[string]string
// @Router /control/{deviceId}/pump [post]
func (h *ControlHandlers) PumpAction(w http.ResponseWriter, r *http.Request) {
	sess := h.app.Session(r.Context(), mux.Vars(r)["deviceId"])
	if err := sess.PumpAction(); err != nil {
		respondWithError(w, errors.NewInternalError("control session unavailable", err))
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// @Summary Force one automatic watering decision
// @Tags control
// @Produce json
// @Success 202 {object} map[string]string
// @Router /control/{deviceId}/decision [post]
func (h *ControlHandlers) RunDecision(w http.ResponseWriter, r *http.Request) {
	sess := h.app.Session(r.Context(), mux.Vars(r)["deviceId"])
	if err := sess.RunDecision(); err != nil {
		respondWithError(w, errors.NewInternalError("control session unavailable", err))
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// @Summary List recent automatic decisions for a device
// @Tags control
// @Produce json
// @Success 200 {array} models.DecisionRecord
// @Router /control/{deviceId}/decisions [get]
func (h *ControlHandlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	if deviceID == "" {
		respondWithError(w, errors.NewValidationError("device id is required", nil))
		return
	}

	records, err := h.app.Audit.ListByDevice(r.Context(), deviceID, 50)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, records)
}
