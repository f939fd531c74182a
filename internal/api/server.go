// Package api provides the HTTP surface of the middleware: request
// creation endpoints for the bank side, the settlement endpoint, and
// the ops endpoints (health, status, Prometheus metrics). All request
// outcomes are read back from persisted status; nothing here waits on a
// broadcast.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/config"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/service"
)

// StatusReader is the slice of the storage layer the status endpoint reads.
type StatusReader interface {
	BookmarkHeight(ctx context.Context) (int64, error)
	MovementCount(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// Server is the middleware's HTTP server.
type Server struct {
	router        *mux.Router
	httpServer    *http.Server
	requests      *service.RequestService
	registrations *service.RegistrationService
	settlements   *service.SettlementService
	status        StatusReader
	log           *logging.Logger
}

// NewServer creates the HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	requests *service.RequestService,
	registrations *service.RegistrationService,
	settlements *service.SettlementService,
	status StatusReader,
	log *logging.Logger,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		requests:      requests,
		registrations: registrations,
		settlements:   settlements,
		status:        status,
		log:           log.Component("api"),
	}

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/registrations", s.handleRegister).Methods("POST")
	api.HandleFunc("/registrations/{address}", s.handleDeregister).Methods("DELETE")
	api.HandleFunc("/registrations/{address}", s.handleGetRegistration).Methods("GET")
	api.HandleFunc("/mints", s.handleCreateMint).Methods("POST")
	api.HandleFunc("/burns", s.handleCreateBurn).Methods("POST")
	api.HandleFunc("/redemptions", s.handleCreateRedemption).Methods("POST")
	api.HandleFunc("/settlements", s.handleQueueSettlement).Methods("POST")
	api.HandleFunc("/requests/{id}", s.handleGetRequest).Methods("GET")
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Infof("http server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
