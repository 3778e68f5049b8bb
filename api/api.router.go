package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/api/middleware"
	"github.com/hydroguard/hydroguard/api/resources"
	"github.com/hydroguard/hydroguard/internal/app"
	"github.com/hydroguard/hydroguard/internal/models"
)

type Router struct {
	router    *mux.Router
	auth      *middleware.KeycloakMiddleware
	resources *resources.Resources
}

func NewRouter(svc *app.Service, keycloakConfig middleware.KeycloakConfig) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		auth:      middleware.NewKeycloakMiddleware(keycloakConfig),
		resources: resources.NewResources(svc),
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", r.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/auth/register", r.resources.Auth.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login/admin", r.resources.Auth.LoginAdmin).Methods(http.MethodPost)
	api.HandleFunc("/auth/login/operator", r.resources.Auth.LoginOperator).Methods(http.MethodPost)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(r.auth.Authenticate)

	// Control
	control := protected.PathPrefix("/control").Subrouter()
	control.HandleFunc("/{deviceId}", r.resources.Control.GetState).Methods(http.MethodGet)
	control.HandleFunc("/{deviceId}/mode", r.resources.Control.SelectMode).Methods(http.MethodPost)
	control.HandleFunc("/{deviceId}/pump", r.resources.Control.PumpAction).Methods(http.MethodPost)
	control.HandleFunc("/{deviceId}/decision", r.resources.Control.RunDecision).Methods(http.MethodPost)
	control.HandleFunc("/{deviceId}/decisions", r.resources.Control.ListDecisions).Methods(http.MethodGet)

	// Operators (admin only except own profile reads)
	operators := protected.PathPrefix("/operators").Subrouter()
	operators.HandleFunc("", r.resources.Operators.ListOperators).Methods(http.MethodGet)
	operators.HandleFunc("/board", r.resources.Operators.GetBoard).Methods(http.MethodGet)
	operators.HandleFunc("/{uid}", r.resources.Operators.GetProfile).Methods(http.MethodGet)
	operators.HandleFunc("/{uid}", r.resources.Operators.UpdateProfile).Methods(http.MethodPut)

	adminOnly := r.auth.RequireRoles([]string{models.RoleAdmin})
	operators.Handle("/{uid}/approve", adminOnly(http.HandlerFunc(r.resources.Operators.Approve))).Methods(http.MethodPost)
	operators.Handle("/{uid}/reject", adminOnly(http.HandlerFunc(r.resources.Operators.Reject))).Methods(http.MethodPost)

	// Sites
	sitesRouter := protected.PathPrefix("/sites").Subrouter()
	sitesRouter.HandleFunc("", r.resources.Sites.ListSites).Methods(http.MethodGet)
	sitesRouter.HandleFunc("", r.resources.Sites.CreateSite).Methods(http.MethodPost)
	sitesRouter.HandleFunc("/{id}", r.resources.Sites.GetSite).Methods(http.MethodGet)
	sitesRouter.HandleFunc("/{id}", r.resources.Sites.UpdateSite).Methods(http.MethodPut)
	sitesRouter.HandleFunc("/{id}/status", r.resources.Sites.GetSiteStatus).Methods(http.MethodGet)

	// Notifications
	protected.HandleFunc("/notifications", r.resources.Feed.GetFeed).Methods(http.MethodGet)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","version":"` + nuts.GetVersion() + `"}`))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(r.router).ServeHTTP(w, req)
}
