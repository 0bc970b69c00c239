package ui

import (
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gometa/domain/core"
	"gometa/internal/report"
	"gometa/ports"
)

//go:embed templates/* static/*
var embeddedFiles embed.FS

// App serves persisted analyses as rendered HTML report pages.
type App struct {
	router    *chi.Mux
	analyses  ports.AnalysisRepository
	datasets  ports.DatasetRepository // nil skips the dataset profile section
	templates *template.Template
}

// NewApp creates the report application over the given stores.
func NewApp(analyses ports.AnalysisRepository, datasets ports.DatasetRepository) (*App, error) {
	if analyses == nil {
		return nil, fmt.Errorf("report app needs an analysis repository")
	}

	templates, err := template.New("").ParseFS(embeddedFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	app := &App{
		router:    chi.NewRouter(),
		analyses:  analyses,
		datasets:  datasets,
		templates: templates,
	}

	app.setupMiddleware()
	app.setupRoutes()

	return app, nil
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))

	// Serve static files
	a.router.Handle("/static/*", http.FileServer(http.FS(embeddedFiles)))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/", a.handleIndex)
	a.router.Get("/reports/{id}", a.handleReport)
}

// Start starts the report server
func (a *App) Start(addr string) error {
	log.Printf("Starting gometa reports on http://%s", addr)
	return http.ListenAndServe(addr, a.router)
}

// handleIndex lists recent analyses as report links.
func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	recent, err := a.analyses.ListRecent(r.Context(), RECENT_LIMIT)
	if err != nil {
		log.Printf("[handleIndex] Error listing analyses: %v", err)
		http.Error(w, "failed to list analyses", http.StatusInternalServerError)
		return
	}

	a.renderTemplate(w, "index.html", map[string]interface{}{
		"Analyses": recent,
	})
}

// handleReport rebuilds the report for one analysis and renders it.
func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	reportID, err := core.ParseReportID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "report id is required", http.StatusBadRequest)
		return
	}

	// Report IDs mirror the analysis they describe.
	rec, err := a.analyses.GetByID(r.Context(), core.AnalysisID(reportID))
	if err != nil {
		if core.IsNotFoundError(err) {
			http.Error(w, core.ErrReportNotFound.Error(), http.StatusNotFound)
			return
		}
		log.Printf("[handleReport] Error loading analysis %s: %v", reportID, err)
		http.Error(w, "failed to load analysis", http.StatusInternalServerError)
		return
	}

	in := &report.Input{
		AnalysisID: rec.ID,
		Estimator:  rec.Estimator,
		Alpha:      rec.Alpha,
		Table:      rec.Table,
		Tau2CI:     rec.Tau2CI,
		CreatedAt:  rec.CreatedAt,
	}

	// Attach the dataset profile when the run used a stored dataset.
	if rec.DatasetID != "" && a.datasets != nil {
		if stored, err := a.datasets.GetByID(r.Context(), rec.DatasetID); err == nil {
			in.DatasetName = stored.Name
			in.Dataset = stored.Dataset
		}
	}

	rep, err := report.Build(in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	a.renderTemplate(w, "report.html", map[string]interface{}{
		"Title": rep.Title,
		"Body":  template.HTML(rep.HTML),
	})
}

// Template helpers
func (a *App) renderTemplate(w http.ResponseWriter, templateName string, data interface{}) {
	w.Header().Set("Content-Type", "text/html")
	if err := a.templates.ExecuteTemplate(w, templateName, data); err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}
