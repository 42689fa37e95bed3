package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedsync/internal/cache"
	"feedsync/internal/config"
	"feedsync/internal/middleware"
	"feedsync/internal/server"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// Load .env if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using environment variables")
	}

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize middleware with config
	middleware.InitMiddleware(cfg)

	// Pick the persistent cache backend: Postgres when DATABASE_URL is set,
	// Redis otherwise. Either way a failed backend degrades to an empty
	// cache instead of taking the engine down.
	var store cache.Store
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.Printf("Postgres connection warning: %v (continuing without cache)", err)
			store = cache.NewMemoryStore()
		} else {
			pg := cache.NewPostgresStore(db)
			if err := pg.Migrate(); err != nil {
				log.Fatalf("Failed to migrate cache schema: %v", err)
			}
			store = pg
		}
	} else {
		store = cache.NewRedisStore(cache.InitRedis(cfg.RedisURL))
	}

	// Build the HTTP facade
	app := server.New(cfg, store, middleware.Logger).App()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	log.Printf("Server starting on port %s...", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
