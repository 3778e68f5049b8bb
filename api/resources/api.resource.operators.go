// FilePath: api/resources/api.resource.operators.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/api/middleware"
	"github.com/hydroguard/hydroguard/internal/app"
	"github.com/hydroguard/hydroguard/internal/errors"
	"github.com/hydroguard/hydroguard/internal/models"
)

type OperatorHandlers struct {
	app *app.Service
}

// @Summary List operator requests
// @Tags operators
// @Produce json
// @Param role query string false "Filter by role"
// @Param status query string false "Filter by derived status"
// @Param search query string false "Substring match on name or email"
// @Success 200 {array} models.OperatorRequest
// @Router /operators [get]
func (h *OperatorHandlers) ListOperators(w http.ResponseWriter, r *http.Request) {
	var filters models.OperatorFilters
	if err := decodeQuery(r, &filters); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err))
		return
	}

	operators, err := h.app.Accounts.ListOperators(r.Context(), filters)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, operators)
}

// @Summary Get the live operator request board
// @Description Today's activity, older entries and the pending count
// @Tags operators
// @Produce json
// @Success 200 {object} aggregate.BoardView
// @Router /operators/board [get]
func (h *OperatorHandlers) GetBoard(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.RequestBoard()
	if err != nil {
		respondWithError(w, errors.NewInternalError("request board unavailable", err))
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

// @Summary Approve an operator request
// @Tags operators
// @Produce json
// @Success 204
// @Router /operators/{uid}/approve [post]
func (h *OperatorHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	if err := h.app.Accounts.Approve(r.Context(), uid); err != nil {
		respondWithError(w, err)
		return
	}

	h.app.Monitoring.RecordEvent("operator.approved", map[string]string{"uid": uid})
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Reject an operator request
// @Tags operators
// @Produce json
// @Success 204
// @Router /operators/{uid}/reject [post]
func (h *OperatorHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	if err := h.app.Accounts.Reject(r.Context(), uid); err != nil {
		respondWithError(w, err)
		return
	}

	h.app.Monitoring.RecordEvent("operator.rejected", map[string]string{"uid": uid})
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Get an operator profile
// @Description Fields are filtered by the caller's role
// @Tags operators
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /operators/{uid} [get]
func (h *OperatorHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	profile, err := h.app.Accounts.Profile(r.Context(), uid, callerRole(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, profile)
}

// @Summary Update an operator profile
// @Description Writes are gated by the caller's role; unauthorized fields are dropped
// @Tags operators
// @Accept json
// @Produce json
// @Success 204
// @Router /operators/{uid} [put]
func (h *OperatorHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	uid := mux.Vars(r)["uid"]

	var changes map[string]any
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.app.Accounts.UpdateProfile(r.Context(), uid, callerRole(r), changes); err != nil {
		respondWithError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// callerRole maps the authenticated user's realm roles onto the profile
// access roles. Unknown callers get the most restrictive gate.
func callerRole(r *http.Request) string {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		return models.RoleOperator
	}
	for _, role := range user.Roles {
		if role == models.RoleAdmin {
			return models.RoleAdmin
		}
	}
	return models.RoleOperator
}
