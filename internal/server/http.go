package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/astrali/finrag/internal/auth"
	"github.com/astrali/finrag/internal/chunk"
	"github.com/astrali/finrag/internal/embedder"
	"github.com/astrali/finrag/internal/index"
	"github.com/astrali/finrag/internal/ingestion"
	"github.com/astrali/finrag/internal/pipeline"
	"github.com/astrali/finrag/internal/prompt"
)

// HTTPServer exposes the pipeline service over a JSON REST API.
type HTTPServer struct {
	server *http.Server
	router *chi.Mux
	svc    *pipeline.Service
	logger *slog.Logger
}

// HTTPServerConfig holds configuration for the HTTP server.
type HTTPServerConfig struct {
	Port           int
	APIKey         string
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins
	MaxSourceBytes int64
	PeriodMonths   int // default market history window for ticker ingestion
	Service        *pipeline.Service
}

// NewHTTPServer creates a new HTTP server wired to the pipeline service.
func NewHTTPServer(cfg HTTPServerConfig) (*HTTPServer, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("pipeline service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = 32 << 20
	}
	if cfg.PeriodMonths <= 0 {
		cfg.PeriodMonths = 20
	}

	s := &HTTPServer{
		svc:    cfg.Service,
		logger: logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))
	router.Use(auth.NewAPIKey(cfg.APIKey).Middleware)

	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", readinessCheckHandler())

	router.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/pdf", s.handleIngestPDF(cfg.MaxSourceBytes))
		r.Post("/tickers", s.handleIngestTickers(cfg.PeriodMonths))
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleSessionInfo)
			r.Delete("/", s.handleDropSession)
			r.Post("/query", s.handleQuery)
			r.Get("/chunks/{chunkID}/locator", s.handleChunkLocator)
		})
	})

	s.router = router
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // generation can be slow
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying chi router, mainly for tests.
func (s *HTTPServer) Router() *chi.Mux {
	return s.router
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
	Chunks    int    `json:"chunks"`
}

type ingestTickersRequest struct {
	Tickers []string `json:"tickers"`
	Start   string   `json:"start,omitempty"` // YYYY-MM-DD, optional
	End     string   `json:"end,omitempty"`
	Months  int      `json:"months,omitempty"` // history window when start/end are absent
}

type queryRequest struct {
	Query string `json:"query"`
}

type citationJSON struct {
	Marker  int         `json:"marker"`
	ChunkID string      `json:"chunk_id"`
	Locator locatorJSON `json:"locator"`
}

type locatorJSON struct {
	Type       string `json:"type"`
	PageNumber int    `json:"page_number,omitempty"`
	Ticker     string `json:"ticker,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	Display    string `json:"display"`
}

type queryResponse struct {
	Answer     string         `json:"answer"`
	Citations  []citationJSON `json:"citations"`
	Unresolved []int          `json:"unresolved,omitempty"`
	Metadata   metadataJSON   `json:"metadata"`
}

type metadataJSON struct {
	RetrievalMillis  int64  `json:"retrieval_ms"`
	GenerationMillis int64  `json:"generation_ms"`
	TotalMillis      int64  `json:"total_ms"`
	ChunksRetrieved  int    `json:"chunks_retrieved"`
	ChunksCited      int    `json:"chunks_cited"`
	Model            string `json:"model"`
}

func (s *HTTPServer) handleIngestPDF(maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		id, err := s.svc.IngestPDF(r.Context(), data)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeSession(w, http.StatusCreated, id)
	}
}

func (s *HTTPServer) handleIngestTickers(defaultMonths int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestTickersRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(req.Tickers) == 0 {
			writeError(w, http.StatusBadRequest, "tickers is required")
			return
		}

		end := time.Now().UTC()
		months := req.Months
		if months <= 0 {
			months = defaultMonths
		}
		start := end.AddDate(0, -months, 0)
		if req.Start != "" {
			t, err := time.Parse("2006-01-02", req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
				return
			}
			start = t
		}
		if req.End != "" {
			t, err := time.Parse("2006-01-02", req.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
				return
			}
			end = t
		}
		if !start.Before(end) {
			writeError(w, http.StatusBadRequest, "start must precede end")
			return
		}

		id, err := s.svc.IngestTickers(r.Context(), req.Tickers, start, end)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeSession(w, http.StatusCreated, id)
	}
}

func (s *HTTPServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	answer, err := s.svc.Ask(r.Context(), sessionID, req.Query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := queryResponse{
		Answer:     answer.Text,
		Citations:  make([]citationJSON, 0, len(answer.Citations)),
		Unresolved: answer.Unresolved,
		Metadata: metadataJSON{
			RetrievalMillis:  answer.Metadata.RetrievalMillis,
			GenerationMillis: answer.Metadata.GenerationMillis,
			TotalMillis:      answer.Metadata.TotalMillis,
			ChunksRetrieved:  answer.Metadata.ChunksRetrieved,
			ChunksCited:      answer.Metadata.ChunksCited,
			Model:            answer.Metadata.Model,
		},
	}
	for _, c := range answer.Citations {
		resp.Citations = append(resp.Citations, citationJSON{
			Marker:  c.Marker,
			ChunkID: c.ChunkID,
			Locator: locatorToJSON(c.Locator),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	info, err := s.svc.Session(sessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: info.ID.String(),
		Source:    string(info.Source),
		Chunks:    info.Chunks,
	})
}

func (s *HTTPServer) handleDropSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	s.svc.DropSession(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleChunkLocator(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	chunkID := chi.URLParam(r, "chunkID")
	loc, err := s.svc.ChunkLocator(sessionID, chunkID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locatorToJSON(loc))
}

func (s *HTTPServer) writeSession(w http.ResponseWriter, status int, id uuid.UUID) {
	info, err := s.svc.Session(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session vanished after ingestion")
		return
	}
	writeJSON(w, status, sessionResponse{
		SessionID: info.ID.String(),
		Source:    string(info.Source),
		Chunks:    info.Chunks,
	})
}

// writeServiceError maps pipeline errors onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrSessionNotFound),
		errors.Is(err, pipeline.ErrChunkNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, ingestion.ErrEmptySource),
		errors.Is(err, ingestion.ErrSourceTooLarge),
		errors.Is(err, embedder.ErrEmptyText),
		errors.Is(err, embedder.ErrInputTooLong),
		errors.Is(err, index.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, prompt.ErrEmptyContext):
		status = http.StatusUnprocessableEntity
	}

	var pErr *pipeline.Error
	stage := ""
	if errors.As(err, &pErr) {
		stage = string(pErr.Stage)
	}

	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"stage", stage,
		"status", status,
		"error", err,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"stage": stage,
	})
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

func locatorToJSON(loc chunk.Locator) locatorJSON {
	switch l := loc.(type) {
	case chunk.PageLocator:
		return locatorJSON{
			Type:       "page",
			PageNumber: l.PageNumber,
			Display:    l.Describe(),
		}
	case chunk.RangeLocator:
		return locatorJSON{
			Type:      "range",
			Ticker:    l.Ticker,
			StartDate: l.StartDate.Format("2006-01-02"),
			EndDate:   l.EndDate.Format("2006-01-02"),
			Display:   l.Describe(),
		}
	default:
		return locatorJSON{Type: "unknown", Display: loc.Describe()}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				// No origins configured: allow all in development
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID, X-Api-Key")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

func readinessCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
