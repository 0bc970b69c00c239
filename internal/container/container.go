// Package container wires the application dependencies for the server and
// CLI entry points: storage, adapters, and services in one place.
package container

import (
	"context"
	"fmt"
	"log"

	"gometa/adapters/bayes"
	"gometa/adapters/excel"
	"gometa/adapters/postgres"
	"gometa/app"
	"gometa/internal/config"
	"gometa/internal/testkit"
	"gometa/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle.
// It starts on in-memory repositories; InitWithDatabase swaps storage to
// postgres and rewires the services.
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	Analyses ports.AnalysisRepository
	Datasets ports.DatasetRepository

	// Adapters
	Reader  ports.TableReader
	Sampler ports.PosteriorSampler
	RNG     ports.RNGPort

	// Services
	Analysis *app.AnalysisService
	Sweeps   *app.SweepService
}

// New creates a container running on in-memory storage.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	kit, err := testkit.NewTestKit()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize test kit: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Analyses: kit.AnalysisRepository(),
		Datasets: kit.DatasetRepository(),
		Reader:   excel.NewDataReader(),
		Sampler:  bayes.NewMetropolisSampler(),
		RNG:      kit.RNGAdapter(),
	}

	if err := c.initServices(); err != nil {
		return nil, err
	}

	return c, nil
}

// InitWithDatabase initializes components that require database access
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	// Test database connection
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.DB = db
	c.Analyses = postgres.NewAnalysisRepository(db)
	c.Datasets = postgres.NewDatasetRepository(db)

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to rewire services: %w", err)
	}

	log.Printf("Container initialized with database storage")
	return nil
}

// initServices builds the service layer over the current repositories.
func (c *Container) initServices() error {
	analysis, err := app.NewAnalysisService(
		c.Analyses, c.Datasets, c.Reader, c.Sampler, c.RNG, c.Config.Analysis)
	if err != nil {
		return fmt.Errorf("failed to create analysis service: %w", err)
	}

	c.Analysis = analysis
	c.Sweeps = app.NewSweepService(c.Datasets, c.Reader, c.Config.Analysis)
	return nil
}

// ColumnMapping builds the reader mapping from the configured data defaults.
func (c *Container) ColumnMapping() ports.ColumnMapping {
	return ports.ColumnMapping{
		Y:          c.Config.Data.YColumn,
		V:          c.Config.Data.VColumn,
		N:          c.Config.Data.NColumn,
		Moderators: c.Config.Data.Moderators,
		Intercept:  c.Config.Data.Intercept,
	}
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	// Close database connection
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
