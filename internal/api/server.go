package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/baxromumarov/job-market-analytics/internal/store"
)

// PostingReader is the read side of the job store.
type PostingReader interface {
	ListRecent(ctx context.Context, limit int) ([]store.PostingRow, error)
}

// ReportCache holds computed reports between requests. *cache.Redis
// satisfies it.
type ReportCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

type Server struct {
	router      *chi.Mux
	postings    PostingReader
	cache       ReportCache
	corsOrigins []string
	logger      zerolog.Logger
}

// NewServer builds the dashboard API. cache may be nil.
func NewServer(postings PostingReader, cache ReportCache, corsOrigins []string, logger zerolog.Logger) *Server {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	s := &Server{
		router:      chi.NewRouter(),
		postings:    postings,
		cache:       cache,
		corsOrigins: corsOrigins,
		logger:      logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/postings", s.handleListPostings)
	s.router.Get("/stats", s.handleStats)
	s.router.Route("/analytics", func(r chi.Router) {
		r.Get("/", s.handleReport)
		r.Get("/overview", s.handleOverview)
		r.Get("/roles", s.handleRoles)
		r.Get("/skills", s.handleSkills)
		r.Get("/salary", s.handleSalary)
		r.Get("/trend", s.handleTrend)
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
