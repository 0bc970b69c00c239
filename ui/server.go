package ui

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"gometa/app"
	"gometa/domain/core"
	"gometa/domain/meta"
	"gometa/internal/config"
	apperrors "gometa/internal/errors"
	"gometa/internal/estimators"
	"gometa/ports"
)

// RECENT_LIMIT caps the warm cache behind GET /api/analyses.
const RECENT_LIMIT = 50

// Server exposes the analysis pipeline as a JSON API.
type Server struct {
	router   *gin.Engine
	analysis *app.AnalysisService
	sweeps   *app.SweepService
	analyses ports.AnalysisRepository // nil disables listing and the warm cache
	datasets ports.DatasetRepository  // nil disables dataset listing
	cfg      config.AnalysisConfig

	// Cache of recent analysis records for fast listing
	cacheMutex       sync.RWMutex
	recentCache      []*meta.AnalysisRecord
	cacheLoaded      bool
	cacheLastUpdated time.Time
}

// NewServer wires the API routes and starts the background cache loader.
// Repositories may be nil; the endpoints that need them answer 503.
func NewServer(
	analysis *app.AnalysisService,
	sweeps *app.SweepService,
	analyses ports.AnalysisRepository,
	datasets ports.DatasetRepository,
	cfg config.AnalysisConfig,
) *Server {
	s := &Server{
		router:   gin.Default(),
		analysis: analysis,
		sweeps:   sweeps,
		analyses: analyses,
		datasets: datasets,
		cfg:      cfg,
	}

	s.setupRoutes()
	s.startRecentLoader()

	return s
}

func (s *Server) setupRoutes() {
	// Analysis endpoints
	s.router.POST("/api/analyses", s.handleRunAnalysis)
	s.router.GET("/api/analyses", s.handleListAnalyses)
	s.router.GET("/api/analyses/:id", s.handleGetAnalysis)

	// Permutation, sweep, and posterior endpoints
	s.router.POST("/api/permutation", s.handleRunPermutation)
	s.router.POST("/api/sweep", s.handleRunSweep)
	s.router.POST("/api/bayes", s.handleRunBayes)

	// Registry and storage endpoints
	s.router.GET("/api/estimators", s.handleListEstimators)
	s.router.GET("/api/datasets", s.handleListDatasets)

	s.router.GET("/api/health", s.handleHealth)
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	log.Printf("Starting gometa API on http://%s", addr)
	return s.router.Run(addr)
}

// handleRunAnalysis runs one estimator end to end and returns the full
// response, refreshing the recent cache when a record was persisted.
func (s *Server) handleRunAnalysis(c *gin.Context) {
	var req app.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := s.analysis.RunAnalysis(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}

	if resp.Persisted {
		s.refreshRecent(c.Request.Context())
	}

	c.JSON(http.StatusOK, resp)
}

// handleRunPermutation runs an analysis with the permutation test forced on,
// defaulting the draw count from configuration.
func (s *Server) handleRunPermutation(c *gin.Context) {
	var req app.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.NPerm <= 0 {
		req.NPerm = s.cfg.Permutations
	}

	resp, err := s.analysis.RunAnalysis(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}

	if resp.Persisted {
		s.refreshRecent(c.Request.Context())
	}

	c.JSON(http.StatusOK, resp)
}

// handleRunSweep fits a family of estimators over one dataset.
func (s *Server) handleRunSweep(c *gin.Context) {
	if s.sweeps == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweep service is not configured"})
		return
	}

	var req app.SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := s.sweeps.RunSweep(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleRunBayes samples the posterior of the random-effects model for one
// dataset, returning summaries and any requested text panels.
func (s *Server) handleRunBayes(c *gin.Context) {
	var req app.BayesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := s.analysis.RunBayes(c.Request.Context(), req)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleGetAnalysis returns one persisted analysis record by ID.
func (s *Server) handleGetAnalysis(c *gin.Context) {
	id, err := core.ParseAnalysisID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "analysis id is required"})
		return
	}

	rec, err := s.analysis.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleListAnalyses serves recent records from the warm cache.
func (s *Server) handleListAnalyses(c *gin.Context) {
	if s.analyses == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis storage is not configured"})
		return
	}

	s.cacheMutex.RLock()
	loaded := s.cacheLoaded
	recent := s.recentCache
	updated := s.cacheLastUpdated
	s.cacheMutex.RUnlock()

	if !loaded {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recent analyses not yet loaded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analyses":   recent,
		"count":      len(recent),
		"updated_at": updated,
	})
}

// handleListEstimators describes the estimator registry.
func (s *Server) handleListEstimators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"estimators": estimators.Configs()})
}

type datasetSummary struct {
	ID          core.DatasetID `json:"id"`
	Name        string         `json:"name"`
	Source      string         `json:"source,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	NStudies    int            `json:"n_studies"`
	CreatedAt   core.Timestamp `json:"created_at"`
}

// handleListDatasets lists stored datasets without their array payloads.
func (s *Server) handleListDatasets(c *gin.Context) {
	if s.datasets == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dataset storage is not configured"})
		return
	}

	stored, err := s.datasets.List(c.Request.Context(), 100, 0)
	if err != nil {
		s.renderError(c, err)
		return
	}

	summaries := make([]datasetSummary, 0, len(stored))
	for _, ds := range stored {
		summary := datasetSummary{
			ID:          ds.ID,
			Name:        ds.Name,
			Source:      ds.Source,
			Fingerprint: ds.Fingerprint.Short(),
			CreatedAt:   ds.CreatedAt,
		}
		if ds.Dataset != nil {
			summary.NStudies = ds.Dataset.NStudies()
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{
		"datasets": summaries,
		"count":    len(summaries),
	})
}

// handleHealth reports liveness and cache state.
func (s *Server) handleHealth(c *gin.Context) {
	s.cacheMutex.RLock()
	loaded := s.cacheLoaded
	updated := s.cacheLastUpdated
	s.cacheMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"cache_loaded":  loaded,
		"cache_updated": updated,
	})
}

// renderError maps domain and application errors onto HTTP status codes.
func (s *Server) renderError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// statusFor classifies an error: validation 400, not found 404, insufficient
// data 422, missing backend 503, numerical and everything else 500.
func statusFor(err error) int {
	switch {
	case core.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case core.IsValidationError(err),
		errors.Is(err, core.ErrUnknownEstimator),
		errors.Is(err, core.ErrUnsupportedMethod):
		return http.StatusBadRequest
	case core.IsNumericalError(err):
		return http.StatusInternalServerError
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.CodeValidation, apperrors.CodeConfigInvalid:
			return http.StatusBadRequest
		case apperrors.CodeNotFound:
			return http.StatusNotFound
		case apperrors.CodeInsufficientData:
			return http.StatusUnprocessableEntity
		case apperrors.CodeDependency:
			return http.StatusServiceUnavailable
		}
	}

	return http.StatusInternalServerError
}

// refreshRecent reloads the listing cache from storage.
func (s *Server) refreshRecent(ctx context.Context) {
	if s.analyses == nil {
		return
	}

	recent, err := s.analyses.ListRecent(ctx, RECENT_LIMIT)
	if err != nil {
		log.Printf("[refreshRecent] Error loading recent analyses: %v", err)
		return
	}

	s.cacheMutex.Lock()
	s.recentCache = recent
	s.cacheLoaded = true
	s.cacheLastUpdated = time.Now()
	s.cacheMutex.Unlock()
}

// startRecentLoader warms the listing cache in the background.
func (s *Server) startRecentLoader() {
	if s.analyses == nil {
		return
	}
	go func() {
		ctx := context.Background()
		// Load once immediately
		s.refreshRecent(ctx)
		// Then reload every 5 minutes; writes also refresh inline
		for {
			time.Sleep(5 * time.Minute)
			s.refreshRecent(ctx)
		}
	}()
}
