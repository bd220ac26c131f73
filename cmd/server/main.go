package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roi.com/phaser/internal/api"
	"roi.com/phaser/internal/config"
	"roi.com/phaser/internal/core"
	"roi.com/phaser/internal/schema"
	"roi.com/phaser/internal/warehouse"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	semanticSchema, err := schema.Load(cfg.SchemaPath)
	if err != nil {
		log.Fatalf("Failed to load semantic schema: %v", err)
	}

	ctx := context.Background()

	llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	dsn := cfg.WarehouseDSN
	if dsn == "" {
		dsn, err = warehouse.FetchDSN(ctx, cfg.WarehouseSecretName, cfg.AWSRegion)
		if err != nil {
			log.Fatalf("Failed to fetch warehouse credentials: %v", err)
		}
	}
	executor, err := warehouse.NewPostgresExecutor(ctx, dsn)
	if err != nil {
		log.Fatalf("Failed to initialize warehouse: %v", err)
	}
	defer executor.Close()

	apiHandler := api.NewAPIHandler(llmService, semanticSchema, executor)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // the retry loop can take several LLM round trips
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
