package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/freelancer-expense-classifier/internal/api"
	"github.com/freelancer-expense-classifier/internal/api/service"
	"github.com/freelancer-expense-classifier/internal/config"
	"github.com/freelancer-expense-classifier/internal/data/mongo"
	"github.com/freelancer-expense-classifier/internal/data/postgres"
	"github.com/freelancer-expense-classifier/internal/domain/upload"
	"github.com/freelancer-expense-classifier/internal/export"
	"github.com/freelancer-expense-classifier/internal/ingest/fileparser"
	"github.com/freelancer-expense-classifier/internal/ingest/llm"
	"github.com/freelancer-expense-classifier/internal/ingest/processor"
	"github.com/freelancer-expense-classifier/internal/logger"
	"github.com/freelancer-expense-classifier/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}
	if err := mongo.EnsureIndexes(appCtx, mongoDB.Database()); err != nil {
		log.Error("Failed to create MongoDB indexes", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	userRepo := mongo.NewUserRepository(log, mongoDB.Database())
	uploadRecordRepo := mongo.NewUploadRecordRepository(log, mongoDB.Database())

	// Initialize the model gateway and its worker pool
	gateway, err := llm.NewAnthropicGateway(log, cfg.LLM)
	if err != nil {
		log.Error("Failed to initialize model gateway", "error", err)
		os.Exit(1)
	}

	// Initialize the processing pipeline
	registry := upload.NewRegistry()
	csvParser := fileparser.NewCSVParser(log, cfg.Upload.DefaultCurrency)
	pdfParser := fileparser.NewPDFParser(log, fileparser.PdftotextExtractor{}, gateway, cfg.Upload.DefaultCurrency)
	controller := processor.NewController(
		log,
		csvParser,
		pdfParser,
		gateway,
		transactionRepo,
		uploadRecordRepo,
		registry,
		cfg.LLM.BatchSize,
		cfg.Upload.ResponseSample,
	)

	// Initialize services
	authService := service.NewAuthService(log, userRepo, cfg.Auth.TokenTTL)
	transactionService := service.NewTransactionService(log, controller, transactionRepo, uploadRecordRepo, registry)
	exportService := export.NewGenerator(log, transactionRepo)

	// Initialize REST server
	server := api.NewServer(log, cfg, authService, transactionService, exportService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first so no new uploads start
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Stop the model worker pool
	gateway.Shutdown()

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
