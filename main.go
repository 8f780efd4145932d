package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"formlogic-engine/api"
	"formlogic-engine/config"
	"formlogic-engine/db"
)

func main() {
	log.Println("Starting Form Logic Engine...")

	configPath := flag.String("config", "./formlogic.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the database
	if err := db.InitDB(cfg.DatabasePath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Database initialized successfully.")
	defer func() {
		if err := db.CloseDB(); err != nil {
			log.Printf("Error closing DB: %v", err)
		}
	}()

	router := mux.NewRouter()
	if cfg.DebugMode {
		router.Use(api.RequestLogger)
		log.Println("Debug mode enabled: request logging active.")
	}
	api.ConfigureRoutes(router)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
		// Recommended timeouts for production readiness
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	// Start server in a goroutine so it doesn't block the main thread
	go func() {
		log.Printf("HTTP server starting on %s", server.Addr)
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatalf("HTTP server failed to start: %v", serveErr)
		}
	}()

	// Setup graceful shutdown: Listen for OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Received shutdown signal. Shutting down gracefully...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Fatalf("HTTP server forced to shutdown: %v", shutdownErr)
	}
	log.Println("HTTP server shut down.")

	log.Println("Form Logic Engine stopped.")
}
