// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	nuts "github.com/vaudience/go-nuts"

	"github.com/hydroguard/hydroguard/api"
	"github.com/hydroguard/hydroguard/api/middleware"
	"github.com/hydroguard/hydroguard/internal/app"
	"github.com/hydroguard/hydroguard/internal/config"
	"github.com/hydroguard/hydroguard/internal/database"
	"github.com/hydroguard/hydroguard/internal/repository"
	"github.com/hydroguard/hydroguard/internal/repository/postgres"
	"github.com/hydroguard/hydroguard/internal/store"
)

// Server represents our HTTP server
type Server struct {
	config *config.Config
	srv    *http.Server
	app    *app.Service
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	return &Server{
		config: cfg,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Start begins listening for requests
func (s *Server) Start() error {
	s.app = initializeAppService(s.config)

	router := api.NewRouter(s.app, middleware.KeycloakConfig{
		URL:          s.config.Keycloak.URL,
		Realm:        s.config.Keycloak.Realm,
		ClientID:     s.config.Keycloak.ClientID,
		ClientSecret: s.config.Keycloak.ClientSecret,
	})
	s.srv.Handler = router

	go func() {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Server] Error starting server: %v", err)
			os.Exit(1)
		}
	}()

	return s.waitForShutdown()
}

// waitForShutdown waits for interrupt signal and gracefully shuts down the server
func (s *Server) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Server] Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	s.app.Close()

	nuts.L.Infof("[Server] Server shut down successfully")
	return nil
}

// initializeAppService creates and wires the application service
func initializeAppService(cfg *config.Config) *app.Service {
	client, err := store.NewRedisStore(cfg.Store)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to store: %v", err)
	}

	return app.New(cfg, client, initAuditLog(cfg))
}

// initAuditLog connects the decision audit log. Auditing is optional; with
// no database configured decisions simply go unlogged.
func initAuditLog(cfg *config.Config) repository.DecisionLogRepository {
	if cfg.AuditDB.Host == "" {
		nuts.L.Infof("[Server] No audit database configured, decision log disabled")
		return repository.NopDecisionLog{}
	}

	db, err := database.NewPostgresDB(cfg.AuditDB)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to audit database: %v", err)
	}

	repo := postgres.NewDecisionLogRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		nuts.L.Fatalf("[Server] Failed to prepare audit schema: %v", err)
	}
	return repo
}
