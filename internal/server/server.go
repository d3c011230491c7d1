// Package server exposes the analysis pipeline and chat agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/catchment-insights/internal/agent"
	"github.com/vitebski/catchment-insights/internal/config"
	"github.com/vitebski/catchment-insights/internal/pipeline"
	"github.com/vitebski/catchment-insights/internal/summary"
	"github.com/vitebski/catchment-insights/internal/visualization"
	"github.com/vitebski/catchment-insights/pkg/models"
)

const maxBodyBytes = 8 << 20

// Analyst is the part of the pipeline served over HTTP
type Analyst interface {
	ProcessQuery(ctx context.Context, userInput string, opts pipeline.Options) pipeline.Response
	ValidateOnly(query string) models.ValidationResult
	ExecuteCustomSQL(ctx context.Context, query string, opts models.QueryOptions) pipeline.CustomSQLResult
	CreateCustomVisualization(rows []models.Row, opts visualization.Options) pipeline.VisualizationResult
	ListVisualizations() pipeline.VisualizationList
	DeleteVisualization(filename string) bool
	GenerateCustomSummary(ctx context.Context, rows []models.Row, c summary.Context) pipeline.SummaryResult
	CompareSummary(ctx context.Context, datasets [][]models.Row, labels []string, c summary.Context) pipeline.SummaryResult
	TrendSummary(ctx context.Context, rows []models.Row, dateCol, valueCol string, c summary.Context) pipeline.SummaryResult
	TestConnection(ctx context.Context) models.ConnectionStatus
	GetAvailableTables(ctx context.Context) models.TablesResult
	GetTableSchema(ctx context.Context, table string) models.TableSchemaResult
}

// Chatter runs one chat turn
type Chatter interface {
	Turn(ctx context.Context, sessionID string, history []*schema.Message) (*agent.TurnResult, error)
}

// Server holds the HTTP handlers
type Server struct {
	Analyst Analyst
	// Chat is optional; /api/chat answers 503 without it
	Chat             Chatter
	VisualizationDir string
	Logger           *logrus.Logger
	validate         *validator.Validate
}

// NewServer creates a new HTTP server for the given pipeline
func NewServer(analyst Analyst, chat Chatter, visualizationDir string, logger *logrus.Logger) *Server {
	return &Server{
		Analyst:          analyst,
		Chat:             chat,
		VisualizationDir: visualizationDir,
		Logger:           logger,
		validate:         validator.New(),
	}
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/validate", s.handleValidate)
		r.Post("/execute", s.handleExecute)

		r.Post("/visualizations", s.handleCreateVisualization)
		r.Get("/visualizations", s.handleListVisualizations)
		r.Delete("/visualizations/{filename}", s.handleDeleteVisualization)

		r.Post("/summary", s.handleSummary)
		r.Post("/summary/compare", s.handleCompare)
		r.Post("/summary/trend", s.handleTrend)

		r.Get("/connection", s.handleConnection)
		r.Get("/tables", s.handleTables)
		r.Get("/tables/{table}/schema", s.handleTableSchema)

		r.Post("/chat", s.handleChat)
	})

	if s.VisualizationDir != "" {
		files := http.StripPrefix("/visualizations/", http.FileServer(http.Dir(s.VisualizationDir)))
		r.Get("/visualizations/*", files.ServeHTTP)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Infof("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
		}).Debug("Handled request")
	})
}

// errorBody is the failure shape for requests rejected before they reach the
// pipeline
type errorBody struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details ...string) {
	writeJSON(w, status, errorBody{Error: message, Details: details})
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", config.Describe(err)...)
		return false
	}
	return true
}

type queryRequest struct {
	Query   string            `json:"query" validate:"required"`
	Options *pipeline.Options `json:"options"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	// options absent from the body keep their defaults
	req := queryRequest{Options: ptr(pipeline.DefaultOptions())}
	if !s.decode(w, r, &req) {
		return
	}
	opts := pipeline.DefaultOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	writeJSON(w, http.StatusOK, s.Analyst.ProcessQuery(r.Context(), strings.TrimSpace(req.Query), opts))
}

type sqlRequest struct {
	SQL     string               `json:"sql" validate:"required"`
	Options *models.QueryOptions `json:"options"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req sqlRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.Analyst.ValidateOnly(req.SQL))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req := sqlRequest{Options: ptr(models.DefaultQueryOptions())}
	if !s.decode(w, r, &req) {
		return
	}
	opts := models.DefaultQueryOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	writeJSON(w, http.StatusOK, s.Analyst.ExecuteCustomSQL(r.Context(), req.SQL, opts))
}

type visualizationRequest struct {
	Data    []models.Row          `json:"data"`
	Options visualization.Options `json:"options"`
}

func (s *Server) handleCreateVisualization(w http.ResponseWriter, r *http.Request) {
	var req visualizationRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.Analyst.CreateCustomVisualization(req.Data, req.Options))
}

func (s *Server) handleListVisualizations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Analyst.ListVisualizations())
}

func (s *Server) handleDeleteVisualization(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !s.Analyst.DeleteVisualization(filename) {
		writeError(w, http.StatusNotFound, "Visualization not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "filename": filename})
}

type summaryRequest struct {
	Data    []models.Row    `json:"data"`
	Context summary.Context `json:"context"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.Analyst.GenerateCustomSummary(r.Context(), req.Data, req.Context))
}

type compareRequest struct {
	Datasets [][]models.Row  `json:"datasets" validate:"min=2"`
	Labels   []string        `json:"labels"`
	Context  summary.Context `json:"context"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.Analyst.CompareSummary(r.Context(), req.Datasets, req.Labels, req.Context))
}

type trendRequest struct {
	Data        []models.Row    `json:"data"`
	DateColumn  string          `json:"dateColumn" validate:"required"`
	ValueColumn string          `json:"valueColumn" validate:"required"`
	Context     summary.Context `json:"context"`
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	var req trendRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.Analyst.TrendSummary(r.Context(), req.Data, req.DateColumn, req.ValueColumn, req.Context))
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Analyst.TestConnection(r.Context()))
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Analyst.GetAvailableTables(r.Context()))
}

func (s *Server) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Analyst.GetTableSchema(r.Context(), chi.URLParam(r, "table")))
}

type chatRequest struct {
	SessionID string          `json:"sessionId"`
	Messages  []agent.Message `json:"messages" validate:"required,min=1,dive"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "Chat is not configured")
		return
	}
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.Chat.Turn(r.Context(), req.SessionID, agent.Messages(req.Messages))
	if err != nil {
		s.Logger.WithField("request_id", middleware.GetReqID(r.Context())).Errorf("Chat turn failed: %v", err)
		writeError(w, http.StatusBadGateway, "Chat turn failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

func ptr[T any](v T) *T {
	return &v
}
