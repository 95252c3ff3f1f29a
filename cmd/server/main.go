package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"taskmarket/internal/database"
	"taskmarket/internal/events"
	"taskmarket/internal/handlers"
	"taskmarket/internal/ledger"
	"taskmarket/internal/market"
	"taskmarket/internal/metrics"
	"taskmarket/internal/middleware"
	"taskmarket/internal/services"
	"taskmarket/internal/store"
)

func main() {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()
	_ = godotenv.Load("../.env")

	cfg := marketConfig()

	// Storage and ledger: PostgreSQL when DATABASE_URL is set, otherwise an
	// in-process store for local development.
	var (
		db         *database.DB
		marketStor market.Store
		marketLedg market.Ledger
		payments   handlers.PaymentLister
	)
	if os.Getenv("DATABASE_URL") != "" {
		var err error
		db, err = database.New()
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		// Run migrations
		if err := db.RunMigrations(); err != nil {
			log.Printf("Warning: failed to run migrations: %v", err)
		}

		pg := ledger.NewPostgres(db)
		marketStor = store.NewPostgres(db)
		marketLedg = pg
		payments = pg
	} else {
		log.Println("WARNING: DATABASE_URL not set, using in-memory store (data is lost on restart)")
		mem := ledger.NewMemory()
		marketStor = market.NewMemoryStore()
		marketLedg = mem
		payments = mem
	}

	// Event fan-out: WebSocket hub and Prometheus always, NATS when
	// configured.
	hub := events.NewHub()
	bus := events.Multi{hub, metrics.NewMetrics()}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		nats, err := events.NewNATSPublisher(natsURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nats.Close()
		bus = append(bus, nats)
	}

	tracker := market.NewReputationTracker(marketStor, cfg)
	auction := market.NewAuctionCoordinator(marketStor, bus, cfg)
	exec := market.NewExecutionCoordinator(marketStor, marketLedg, bus, tracker, cfg)

	router := mux.NewRouter()
	router.Use(middleware.CORSMiddleware)

	tasksHandler := handlers.NewTasksHandler(marketStor, auction, bus)
	offersHandler := handlers.NewOffersHandler(auction)
	executionsHandler := handlers.NewExecutionsHandler(marketStor, exec)
	agentsHandler := handlers.NewAgentsHandler(db, marketStor, tracker, payments)

	// Event stream and metrics (public)
	router.HandleFunc("/api/events/ws", hub.ServeWS).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Public marketplace reads
	router.HandleFunc("/api/tasks", tasksHandler.ListTasks).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/tasks/{id}", tasksHandler.GetTask).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/tasks/{id}/offers", tasksHandler.ListTaskOffers).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/tasks/{id}/execution", executionsHandler.GetExecution).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/agents/{id}", agentsHandler.GetAgent).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/agents/{id}/reputation", agentsHandler.ReputationHistory).Methods("GET", "OPTIONS")

	// Agent routes (requires agent API key)
	agentRouter := router.PathPrefix("/api/agent").Subrouter()
	if db != nil {
		agentRouter.Use(handlers.AgentAuthMiddleware(db))
	} else {
		log.Println("WARNING: agent auth disabled, trusting X-Agent-ID header")
		agentRouter.Use(handlers.DevAgentAuthMiddleware)
	}
	agentRouter.HandleFunc("/tasks/{id}/offers", offersHandler.SubmitOffer).Methods("POST", "OPTIONS")
	agentRouter.HandleFunc("/tasks/{id}/execution/start", executionsHandler.StartExecution).Methods("POST", "OPTIONS")
	agentRouter.HandleFunc("/tasks/{id}/execution/complete", executionsHandler.CompleteExecution).Methods("POST", "OPTIONS")
	agentRouter.HandleFunc("/payments", agentsHandler.ListPayments).Methods("GET", "OPTIONS")

	if db != nil {
		// Auth routes (public)
		authHandler := handlers.NewAuthHandler(db)
		router.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
		router.HandleFunc("/api/auth/register", authHandler.Register).Methods("POST", "OPTIONS")

		// Agent enrollment (public - uses enrollment token)
		router.HandleFunc("/api/agent/enroll", agentsHandler.Enroll).Methods("POST", "OPTIONS")
		agentRouter.HandleFunc("/heartbeat", agentsHandler.Heartbeat).Methods("POST", "OPTIONS")

		// Protected API routes (requires user auth)
		apiRouter := router.PathPrefix("/api").Subrouter()
		apiRouter.Use(middleware.AuthMiddleware)
		apiRouter.HandleFunc("/auth/me", authHandler.Me).Methods("GET", "OPTIONS")
		apiRouter.HandleFunc("/tasks", tasksHandler.CreateTask).Methods("POST", "OPTIONS")
		apiRouter.HandleFunc("/tasks/{id}/auction/start", tasksHandler.StartAuction).Methods("POST", "OPTIONS")
		apiRouter.HandleFunc("/tasks/{id}/auction/cancel", tasksHandler.CancelAuction).Methods("POST", "OPTIONS")
		apiRouter.HandleFunc("/agents/{id}/reputation/recompute", agentsHandler.RecomputeReputation).Methods("POST", "OPTIONS")
		apiRouter.HandleFunc("/enrollment-tokens", agentsHandler.CreateEnrollmentToken).Methods("POST", "OPTIONS")
	} else {
		// Without a database there are no users; task management is open.
		router.HandleFunc("/api/tasks", tasksHandler.CreateTask).Methods("POST", "OPTIONS")
		router.HandleFunc("/api/tasks/{id}/auction/start", tasksHandler.StartAuction).Methods("POST", "OPTIONS")
		router.HandleFunc("/api/tasks/{id}/auction/cancel", tasksHandler.CancelAuction).Methods("POST", "OPTIONS")
		router.HandleFunc("/api/agents/{id}/reputation/recompute", agentsHandler.RecomputeReputation).Methods("POST", "OPTIONS")
	}

	// Cancel tasks whose deadline passed before assignment
	sweepInterval := 30 * time.Second
	if intervalStr := os.Getenv("SWEEP_INTERVAL_SECONDS"); intervalStr != "" {
		if val, err := strconv.Atoi(intervalStr); err == nil && val > 0 {
			sweepInterval = time.Duration(val) * time.Second
		}
	}
	sweeper := services.NewDeadlineSweeper(marketStor, auction, sweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	log.Printf("Auction duration: %s, deadline sweep interval: %s", cfg.AuctionDuration, sweepInterval)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// marketConfig builds the coordinator configuration from the environment,
// falling back to defaults for anything unset.
func marketConfig() market.Config {
	cfg := market.DefaultConfig()
	if v := os.Getenv("AUCTION_DURATION_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			cfg.AuctionDuration = time.Duration(seconds) * time.Second
		}
	}
	if v := os.Getenv("PAYMENT_TOKEN_SYMBOL"); v != "" {
		cfg.TokenSymbol = v
	}
	if v := os.Getenv("REPUTATION_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ReputationWindow = n
		}
	}
	return cfg
}
