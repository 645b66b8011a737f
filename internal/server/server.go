// Package server exposes the pipeline over HTTP for project-management
// integrations: document analysis, element listing, plugin catalog, and
// quote export.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/model"
	"github.com/specwright/takeoff-cli/internal/normalize"
	"github.com/specwright/takeoff-cli/internal/pipeline"
	"github.com/specwright/takeoff-cli/internal/plugin"
	"github.com/specwright/takeoff-cli/internal/quote"
	"github.com/specwright/takeoff-cli/internal/store"
)

// Server handles the HTTP API.
type Server struct {
	st    store.Store
	reg   *plugin.Registry
	orch  *pipeline.Orchestrator
	norm  *normalize.Normalizer
	orgID string
}

// New creates a Server.
func New(st store.Store, reg *plugin.Registry, orch *pipeline.Orchestrator, norm *normalize.Normalizer, orgID string) *Server {
	return &Server{
		st:    st,
		reg:   reg,
		orch:  orch,
		norm:  norm,
		orgID: orgID,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/plugins", s.handlePlugins)
		r.Post("/documents", s.handleAnalyzeDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/records", s.handleListRecords)
		r.Get("/documents/{id}/elements", s.handleListElements)
		r.Get("/quotes/{id}", s.handleGetQuote)
		r.Get("/quotes/{id}/export", s.handleExportQuote)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Descriptors())
}

// analyzeRequest carries an already-extracted specification text. Document
// upload and text extraction live with the upstream document collaborator.
type analyzeRequest struct {
	ProjectID  string   `json:"project_id"`
	Name       string   `json:"name"`
	TradeScope []string `json:"trade_scope"`
	Text       string   `json:"text"`
}

type analyzeResponse struct {
	Document *model.Document  `json:"document"`
	Result   *pipeline.Result `json:"result"`
	Elements []model.Element  `json:"elements"`
}

func (s *Server) handleAnalyzeDocument(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.New("invalid request body"))
		return
	}
	if req.Name == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, eris.New("name and text are required"))
		return
	}

	scope := make([]model.Trade, 0, len(req.TradeScope))
	for _, raw := range req.TradeScope {
		t, err := model.ParseTrade(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		scope = append(scope, t)
	}

	now := time.Now().UTC()
	doc := &model.Document{
		ID:         uuid.NewString(),
		ProjectID:  req.ProjectID,
		OrgID:      s.orgID,
		Name:       req.Name,
		TradeScope: scope,
		Status:     model.DocStatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.st.CreateDocument(r.Context(), doc); err != nil {
		writeStoreError(w, err)
		return
	}

	result, err := s.orch.Analyze(r.Context(), doc, req.Text)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	elements, err := s.orch.RefreshElements(r.Context(), doc.ID, s.norm)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	doc, err = s.st.GetDocument(r.Context(), doc.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, analyzeResponse{
		Document: doc,
		Result:   result,
		Elements: elements,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.st.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	includeSuperseded := r.URL.Query().Get("all") == "true"
	records, err := s.st.ListExtractionRecords(r.Context(), chi.URLParam(r, "id"), includeSuperseded)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleListElements(w http.ResponseWriter, r *http.Request) {
	elements, err := s.st.ListElements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elements)
}

func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.st.GetQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleExportQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.st.GetQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	export, err := quote.BuildExport(q, time.Now().UTC())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeStoreError maps domain sentinels to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case eris.Is(err, model.ErrInvalidTransition),
		eris.Is(err, model.ErrConcurrentModification),
		eris.Is(err, model.ErrAnalysisInProgress):
		writeError(w, http.StatusConflict, err)
	case eris.Is(err, model.ErrDocumentTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err)
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	}
}
