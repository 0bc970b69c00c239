package main

import (
	"context"
	"log"
	"net/http"
	_ "net/http/pprof"
	"path/filepath"
	"strings"

	"gometa/internal/config"
	"gometa/internal/container"
	"gometa/internal/errors"
	"gometa/internal/migration"
	"gometa/ui"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase connects to PostgreSQL and brings the schema up to date
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	if appConfig.Database.URL == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}

	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	// Run migrations
	migrator := migration.NewRunner()
	if err := migrator.Run(context.Background(), db); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

// seedConfiguredDataset imports the DATA_FILE dataset once, keeping the
// stored copy across restarts.
func seedConfiguredDataset(ctx context.Context, appContainer *container.Container) {
	path := appContainer.Config.Data.File
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if stored, err := appContainer.Datasets.GetByName(ctx, name); err == nil {
		log.Printf("Dataset %q already stored (%s)", name, stored.ID)
		return
	}

	stored, err := appContainer.Analysis.ImportDataset(ctx, name, path, appContainer.ColumnMapping())
	if err != nil {
		log.Fatalf("Failed to import configured dataset: %v", err)
	}
	log.Printf("Imported dataset %q from %s (%d studies)", stored.Name, path, stored.Dataset.NStudies())
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load application configuration
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	gin.SetMode(appConfig.Server.GinMode)

	// Create dependency injection container (in-memory storage by default)
	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	// Wire PostgreSQL persistence when configured
	if appConfig.Database.URL != "" {
		db, err := initDatabase(appConfig)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		if err := appContainer.InitWithDatabase(db); err != nil {
			log.Fatalf("Failed to initialize container: %v", err)
		}
	} else {
		log.Printf("No DATABASE_URL configured, using in-memory storage")
	}

	// Import the configured data source
	if appConfig.Data.File != "" {
		seedConfiguredDataset(context.Background(), appContainer)
	} else {
		log.Printf("No DATA_FILE configured; datasets arrive via the API or CLI")
	}

	// Start the report pages alongside the API
	reportApp, err := ui.NewApp(appContainer.Analyses, appContainer.Datasets)
	if err != nil {
		log.Fatalf("Failed to create report app: %v", err)
	}
	go func() {
		if err := reportApp.Start(":" + appConfig.Server.ReportPort); err != nil {
			log.Printf("❌ report server failed: %v", err)
		}
	}()

	// Start pprof server for performance profiling
	if appConfig.Profiling.Enabled {
		go func() {
			log.Printf("🚀 Performance profiling server starting on :%s", appConfig.Profiling.Port)
			log.Printf("💡 View profiles: go tool pprof -http=:8082 http://localhost:%s/debug/pprof/profile?seconds=30", appConfig.Profiling.Port)
			if err := http.ListenAndServe(":"+appConfig.Profiling.Port, nil); err != nil {
				log.Printf("❌ pprof server failed: %v", err)
			}
		}()
	}

	// Start the API server
	server := ui.NewServer(
		appContainer.Analysis,
		appContainer.Sweeps,
		appContainer.Analyses,
		appContainer.Datasets,
		appConfig.Analysis,
	)
	log.Printf("🚀 Starting gometa API on port %s", appConfig.Server.Port)
	log.Fatal(server.Start(":" + appConfig.Server.Port))
}
