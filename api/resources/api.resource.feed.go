// FilePath: api/resources/api.resource.feed.go
package resources

import (
	"net/http"

	"github.com/hydroguard/hydroguard/internal/app"
	"github.com/hydroguard/hydroguard/internal/errors"
)

type FeedHandlers struct {
	app *app.Service
}

// @Summary Get the rendered notification feed for a scope
// @Description Today's notifications and the rest of the window, newest first
// @Tags notifications
// @Produce json
// @Param scope query string false "Notification scope (defaults to the operator scope)"
// @Success 200 {object} aggregate.FeedView
// @Router /notifications [get]
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	view, err := h.app.Feed(r.URL.Query().Get("scope"))
	if err != nil {
		respondWithError(w, errors.NewInternalError("notification feed unavailable", err))
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}
