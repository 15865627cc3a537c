// Package server exposes the assistant over HTTP: query dispatch, the
// airspace picture, flight following and a websocket stream of updates.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/airspace-assistant/internal/airspace"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/query"
)

// Dispatcher answers raw queries. *query.Dispatcher implements it.
type Dispatcher interface {
	DispatchRaw(ctx context.Context, kind string, arg1, arg2 any, flight query.FlightData) (query.Envelope, error)
}

// Airspace is the ambient picture. *airspace.AirspaceWorker implements it.
type Airspace interface {
	Latest() airspace.Surroundings
	SetCenter(center coordinates.Geographic)
}

// Follower follows one flight. *airspace.Follower implements it.
type Follower interface {
	Follow(ctx context.Context, id string) (query.FlightData, error)
	Unfollow()
	Current() query.FlightData
}

// Autocompleter searches live traffic. *airspace.TrafficStore implements it.
type Autocompleter interface {
	Search(partial string, limit int) []airspace.Suggestion
}

// Config wires a Server. Dispatcher is required; routes whose collaborator
// is nil answer 503.
type Config struct {
	Dispatcher   Dispatcher
	Airspace     Airspace
	Follower     Follower
	Autocomplete Autocompleter

	// Metrics serves /metrics when set
	Metrics http.Handler

	// Health reports readiness for /healthz; nil always succeeds
	Health func(ctx context.Context) error

	// Hub streams updates on /ws; a new one is created when nil
	Hub *Hub

	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server holds the HTTP router and its dependencies.
type Server struct {
	router *chi.Mux
	hub    *Hub
	cfg    Config
	logger *slog.Logger
}

// New creates a server and its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("server: dispatcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: cfg.Logger,
	}
	s.hub = cfg.Hub
	if s.hub == nil {
		s.hub = NewHub(cfg.Logger)
	}
	s.hub.upgrader.CheckOrigin = s.checkOrigin
	s.hub.greeting = s.greeting
	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub, to be registered as an airspace sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics)
	}
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/kinds", s.handleKinds)
		r.Post("/query", s.handleQuery)

		r.Get("/airspace", s.handleGetAirspace)
		r.Put("/airspace/center", s.handleSetCenter)
		r.Get("/autocomplete", s.handleAutocomplete)

		r.Get("/follow", s.handleGetFollow)
		r.Post("/follow", s.handleFollow)
		r.Delete("/follow", s.handleUnfollow)
	})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// greeting is sent to each new websocket client.
func (s *Server) greeting() []Message {
	var out []Message
	if s.cfg.Airspace != nil {
		out = append(out, Message{Type: MessageSurroundings, Data: s.cfg.Airspace.Latest()})
	}
	if s.cfg.Follower != nil {
		if f := s.cfg.Follower.Current(); f.IsFollowing {
			out = append(out, Message{Type: MessageFlight, Data: f})
		}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, query.Kinds)
}

// queryRequest is the body of POST /api/query. Flight overrides the
// followed flight as the subject of the question.
type queryRequest struct {
	Kind   string            `json:"kind"`
	Arg1   any               `json:"arg1"`
	Arg2   any               `json:"arg2"`
	Flight *query.FlightData `json:"flight_data,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var flight query.FlightData
	switch {
	case req.Flight != nil:
		flight = *req.Flight
	case s.cfg.Follower != nil:
		flight = s.cfg.Follower.Current()
	}

	env, err := s.cfg.Dispatcher.DispatchRaw(r.Context(), req.Kind, req.Arg1, req.Arg2, flight)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, query.ErrUnknownKind) || errors.Is(err, query.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, env)
}

func (s *Server) handleGetAirspace(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Airspace == nil {
		respondError(w, http.StatusServiceUnavailable, "airspace not available")
		return
	}
	respondJSON(w, http.StatusOK, s.cfg.Airspace.Latest())
}

func (s *Server) handleSetCenter(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Airspace == nil {
		respondError(w, http.StatusServiceUnavailable, "airspace not available")
		return
	}

	var center coordinates.Geographic
	if err := json.NewDecoder(r.Body).Decode(&center); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if center.Latitude < -90 || center.Latitude > 90 || center.Longitude < -180 || center.Longitude > 180 {
		respondError(w, http.StatusBadRequest, "center out of range")
		return
	}

	s.cfg.Airspace.SetCenter(center)
	respondJSON(w, http.StatusOK, center)
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Autocomplete == nil {
		respondError(w, http.StatusServiceUnavailable, "traffic not available")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	suggestions := s.cfg.Autocomplete.Search(r.URL.Query().Get("q"), limit)
	if suggestions == nil {
		suggestions = []airspace.Suggestion{}
	}
	respondJSON(w, http.StatusOK, suggestions)
}

func (s *Server) handleGetFollow(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Follower == nil {
		respondError(w, http.StatusServiceUnavailable, "follower not available")
		return
	}
	respondJSON(w, http.StatusOK, s.cfg.Follower.Current())
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Follower == nil {
		respondError(w, http.StatusServiceUnavailable, "follower not available")
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flight, err := s.cfg.Follower.Follow(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, airspace.ErrNotTracked) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("follow failed", "id", req.ID, "error", err)
		respondError(w, http.StatusBadGateway, "failed to follow aircraft")
		return
	}
	respondJSON(w, http.StatusOK, flight)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Follower == nil {
		respondError(w, http.StatusServiceUnavailable, "follower not available")
		return
	}
	s.cfg.Follower.Unfollow()
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
