package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microfin-loan-servicing/internal/api"
	apiservice "github.com/microfin-loan-servicing/internal/api/service"
	"github.com/microfin-loan-servicing/internal/config"
	"github.com/microfin-loan-servicing/internal/data/mongo"
	"github.com/microfin-loan-servicing/internal/data/postgres"
	"github.com/microfin-loan-servicing/internal/logger"
	"github.com/microfin-loan-servicing/internal/platform/messaging/producers"
	"github.com/microfin-loan-servicing/internal/platform/persistence"
	"github.com/microfin-loan-servicing/internal/servicing"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("loan_api")
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

	// Kafka producer for queueing payment instructions
	instructionProducer, err := producers.NewPaymentInstructionProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payment instruction producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	loanRepo := postgres.NewLoanRepository(log, postgresDB)
	paymentRepo := postgres.NewPaymentRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())

	// Initialize servicing engine and services
	clock := servicing.NewClock()
	servicer := servicing.CreateServicer(postgresDB, loanRepo, paymentRepo, outboxRepo, log, cfg)
	accrualService, err := servicing.CreateAccrualService(postgresDB, loanRepo, outboxRepo, log, cfg)
	if err != nil {
		log.Error("Failed to initialize accrual service", "error", err)
		os.Exit(1)
	}

	loanService := apiservice.NewLoanService(log, servicer, accrualService, loanRepo, clock)
	paymentService := apiservice.NewPaymentService(log, servicer, paymentRepo, instructionProducer)
	noteService := apiservice.NewNoteService(log, auditRepo, loanRepo, clock)

	// Initialize REST server
	server := api.NewServer(log, cfg, loanService, paymentService, noteService)
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

	// Shutdown HTTP server first so in-flight requests drain
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	accrualService.Shutdown()

	postgresDB.Close()

	if err = instructionProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

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
