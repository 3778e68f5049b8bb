// FilePath: api/resources/api.resource.auth.go
package resources

import (
	"encoding/json"
	"net/http"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/internal/app"
	"github.com/hydroguard/hydroguard/internal/errors"
)

type AuthHandlers struct {
	app *app.Service
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// @Summary Register a new operator account
// @Description Creates the credential account and a pending operator request
// @Tags auth
// @Accept json
// @Produce json
// @Success 201 {object} map[string]string
// @Router /auth/register [post]
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	uid, err := h.app.Accounts.RegisterOperator(r.Context(), req.Name, req.Email, req.Phone, req.Password)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"uid": uid})
}

// @Summary Log in as administrator
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} accounts.Session
// @Router /auth/login/admin [post]
func (h *AuthHandlers) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	session, err := h.app.Accounts.LoginAdmin(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// @Summary Log in as operator
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} accounts.Session
// @Router /auth/login/operator [post]
func (h *AuthHandlers) LoginOperator(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	session, err := h.app.Accounts.LoginOperator(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}
