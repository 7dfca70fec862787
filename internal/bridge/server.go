package bridge

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trainwatch/internal/config"
	"trainwatch/internal/engine"
	"trainwatch/internal/types"
)

// StatusProvider exposes the live trip snapshot. Implemented by engine.Trip.
type StatusProvider interface {
	Status() engine.Status
}

// Config holds Server dependencies.
type Config struct {
	Provider types.RouteProvider
	// Trip is the active trip, or nil when the bridge runs standalone.
	Trip   StatusProvider
	Build  config.BuildInfo
	Logger *slog.Logger
}

// Server is the HTTP bridge.
type Server struct {
	provider types.RouteProvider
	trip     StatusProvider
	build    config.BuildInfo
	logger   *slog.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		provider: cfg.Provider,
		trip:     cfg.Trip,
		build:    cfg.Build,
		logger:   logger,
	}
}

// Routes assembles the router with the standard middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.Recoverer)
	r.Use(s.RequestID)
	r.Use(s.RequestLogger)

	r.Get("/health", s.HandleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/trips/{trainNumber}", s.HandleGetTrip)
		r.Get("/trip/status", s.HandleTripStatus)
	})

	return r
}

// healthResponse is the JSON body for the health endpoint.
type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// HandleHealth reports liveness and build identity. Public, unauthenticated.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, healthResponse{
		Status:    "healthy",
		Version:   s.build.Version,
		Commit:    s.build.Commit,
		BuildTime: s.build.BuildTime,
	})
}

// HandleGetTrip fetches the ordered station list for a train number:
// 400 on a malformed number, 404 when the trip is unknown, 503 when the
// route provider is unreachable.
func (s *Server) HandleGetTrip(w http.ResponseWriter, r *http.Request) {
	trainNumber := chi.URLParam(r, "trainNumber")

	route, err := s.provider.FetchRoute(r.Context(), trainNumber)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "route fetch failed",
			"train_number", trainNumber,
			"error", err,
		)
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: route})
}

// HandleTripStatus returns the active trip snapshot, or 404 when no trip is
// running.
func (s *Server) HandleTripStatus(w http.ResponseWriter, r *http.Request) {
	if s.trip == nil {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundTrip, "no active trip", nil))
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: s.trip.Status()})
}
