package main

import (
	"context"
	"log"

	"gometa/internal/config"
	"gometa/internal/container"
	"gometa/internal/migration"
	"gometa/ui"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// API-only entry point: the JSON surface without report pages or pprof.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	gin.SetMode(appConfig.Server.GinMode)

	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	if appConfig.Database.URL != "" {
		db, err := sqlx.Connect("postgres", appConfig.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := migration.NewRunner().Run(context.Background(), db); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		if err := appContainer.InitWithDatabase(db); err != nil {
			log.Fatalf("Failed to initialize container: %v", err)
		}
	} else {
		log.Printf("No DATABASE_URL configured, using in-memory storage")
	}

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
