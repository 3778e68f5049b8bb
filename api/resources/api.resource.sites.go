// FilePath: api/resources/api.resource.sites.go
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

type SiteHandlers struct {
	app *app.Service
}

// @Summary List irrigation sites
// @Tags sites
// @Produce json
// @Param district query string false "Filter by district"
// @Param village query string false "Filter by village"
// @Param search query string false "Substring match on name, village or operator"
// @Success 200 {array} models.Site
// @Router /sites [get]
func (h *SiteHandlers) ListSites(w http.ResponseWriter, r *http.Request) {
	var filters models.SiteFilters
	if err := decodeQuery(r, &filters); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err))
		return
	}

	list, err := h.app.Sites.List(r.Context(), filters)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, list)
}

// @Summary Register a new irrigation site
// @Tags sites
// @Accept json
// @Produce json
// @Success 201 {object} map[string]string
// @Router /sites [post]
func (h *SiteHandlers) CreateSite(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var site models.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	creator := ""
	if user, ok := middleware.GetUser(r.Context()); ok {
		creator = user.ID
	}

	id, err := h.app.Sites.Create(r.Context(), site, creator)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// @Summary Get one site
// @Tags sites
// @Produce json
// @Success 200 {object} models.Site
// @Router /sites/{id} [get]
func (h *SiteHandlers) GetSite(w http.ResponseWriter, r *http.Request) {
	site, err := h.app.Sites.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, site)
}

// @Summary Update a site
// @Tags sites
// @Accept json
// @Produce json
// @Success 204
// @Router /sites/{id} [put]
func (h *SiteHandlers) UpdateSite(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if err := h.app.Sites.Update(r.Context(), mux.Vars(r)["id"], fields); err != nil {
		respondWithError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary Get the live device status behind a site
// @Tags sites
// @Produce json
// @Success 200 {object} models.SiteStatus
// @Router /sites/{id}/status [get]
func (h *SiteHandlers) GetSiteStatus(w http.ResponseWriter, r *http.Request) {
	site, err := h.app.Sites.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, err)
		return
	}

	status, err := h.app.Sites.Status(r.Context(), site.DeviceID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}
