/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the QPerform escalation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load escalation policy (defaults, or TOML/JSON file)
  3. Initialize SQLite store
  4. Connect NATS publisher (optional)
  5. Create workflow service, metrics and API handler
  6. Start leadership sweep scheduler
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: qperform.db)
                   Use ":memory:" for in-memory database
  -policy          Policy file (.toml or .json); defaults when empty
  -nats            NATS server URL; events are dropped when empty
  -sweep-interval  Leadership sweep interval; 0 disables the scheduler

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close NATS and database connections
  5. Exit

EXAMPLES:
  # Run with file database and custom policy
  ./server -db="./data/qperform.db" -policy=./policy.toml

  # Publish events to a local NATS server
  ./server -nats=nats://127.0.0.1:4222

SEE ALSO:
  - api/server.go: Router configuration
  - workflow/service.go: Escalation workflow
  - factory/policy.go: Policy loading
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deadlyrat/qperform-server-dev/api"
	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/events"
	"github.com/deadlyrat/qperform-server-dev/factory"
	"github.com/deadlyrat/qperform-server-dev/store/sqlite"
	"github.com/deadlyrat/qperform-server-dev/workflow"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "qperform.db", "SQLite database path")
	policyPath := flag.String("policy", "", "Escalation policy file (.toml or .json)")
	natsURL := flag.String("nats", "", "NATS server URL for domain events")
	sweepInterval := flag.Duration("sweep-interval", 24*time.Hour, "Leadership sweep interval (0 disables)")
	flag.Parse()

	// Load policy
	policy := factory.DefaultPolicy()
	if *policyPath != "" {
		p, err := factory.LoadPolicyFile(*policyPath)
		if err != nil {
			log.Fatalf("Failed to load policy: %v", err)
		}
		policy = p
		log.Printf("Loaded policy from %s", *policyPath)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Event publisher
	var publisher events.Publisher = events.Nop{}
	if *natsURL != "" {
		pub, err := events.ConnectNATS(*natsURL, 5*time.Second)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer pub.Close()
		publisher = pub
		log.Printf("Publishing events to %s", *natsURL)
	}

	// Service and handler
	metrics := api.NewMetrics()
	service := workflow.New(store, policy,
		workflow.WithPublisher(publisher),
		workflow.WithObserver(metrics),
	)
	handler, err := api.NewHandler(service, store, metrics)
	if err != nil {
		log.Fatalf("Failed to initialize handler: %v", err)
	}

	// Leadership sweep
	handler.Scheduler.CheckInterval = *sweepInterval
	handler.Scheduler.Enabled = *sweepInterval > 0
	handler.Scheduler.Start()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api (week threshold %d, %s counting)",
			*port, policy.WeekThreshold, countingLabel(policy))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	handler.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		return
	}

	log.Println("Server stopped")
}

func countingLabel(p discipline.Policy) string {
	if p.CountingMode == discipline.CountConsecutive {
		return "consecutive"
	}
	return "total"
}
