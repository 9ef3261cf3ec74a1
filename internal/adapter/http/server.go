package http

import (
	"context"
	"net"
	"net/http"

	"github.com/fleetwatch/fleetwatch/internal/adapter/auth"
	"github.com/fleetwatch/fleetwatch/internal/adapter/loader"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/logger"
	"github.com/fleetwatch/fleetwatch/internal/ports"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Server represents the HTTP server
type Server struct {
	addr    string
	handler http.Handler
	server  *http.Server
	logger  logger.Logger
}

// Dependencies groups what the router needs besides the asset services
type Dependencies struct {
	Security  config.SecurityConfig
	Tokens    *auth.TokenService
	Operators ports.OperatorRepository
	Logger    logger.Logger
}

// NewServer creates a new HTTP server serving one resource per asset service
func NewServer(cfg config.ServerConfig, deps Dependencies, services ...AssetService) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, "ok", nil)
	}).Methods("GET")

	for _, service := range services {
		NewAssetHandler(service).RegisterRoutes(router)
	}

	router.Use(correlationMiddleware)
	router.Use(loggingMiddleware(log))
	router.Use(recoveryMiddleware(log))
	router.Use(authMiddleware(deps.Security.AuthMode, deps.Tokens))
	if deps.Operators != nil {
		router.Use(loader.Middleware(deps.Operators))
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   deps.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", userHeader, correlationHeader},
		ExposedHeaders:   []string{correlationHeader},
		AllowCredentials: true,
	}).Handler(router)

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  log,
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Handler exposes the fully wrapped router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting HTTP server", map[string]interface{}{"addr": s.addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
