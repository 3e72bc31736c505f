package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chess-server/internal/audit"
	"chess-server/internal/auth"
	"chess-server/internal/config"
	"chess-server/internal/db"
	"chess-server/internal/eventbus"
	"chess-server/internal/handlers"
	"chess-server/internal/middleware"
	"chess-server/internal/services"
	"chess-server/internal/store"
	"chess-server/internal/ws"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; deployments set real environment variables
	_ = godotenv.Load()

	env := config.GetEnv()
	logger := newLogger(env)
	defer logger.Sync()

	cfg, err := config.Load(env)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting chess server", zap.String("environment", cfg.Environment))

	// Connect to MongoDB
	mongodb, err := db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongodb.Close(ctx)
	}()

	logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDB.Database))

	// Session fabric: hub + cross-node event bus
	hub := ws.NewHub(logger)
	bus := eventbus.New(mongodb.WSEvents(), hub.DeliverRemote, logger)
	hub.AttachBus(bus)
	bus.Start()
	defer bus.Stop()

	// Game engine wiring
	gameStore := store.NewMongoStore(mongodb.Games())
	auditLog := audit.NewLogger(mongodb.GameAudit(), logger)
	stats := services.NewStats(gameStore, mongodb.UserStats(), logger)
	coord := services.NewCoordinator(gameStore, hub, stats, auditLog, logger)

	watcher := services.NewWatcher(gameStore, coord, logger)
	watcher.Start()
	defer watcher.Stop()

	presence := services.NewPresence(mongodb.Presence(), hub, hub.ClientCount, bus.MachineID(), logger)
	presence.Start()
	defer presence.Stop()

	// Handlers
	verifier := auth.NewVerifier(cfg.JWT.Secret)
	wsHandler := ws.NewHandler(hub, coord, verifier, logger)
	gameHandler := handlers.NewGameHandler(coord, logger)

	rateLimiter := middleware.NewRateLimiter()
	defer rateLimiter.Stop()

	// Set up router
	router := mux.NewRouter()
	router.Use(middleware.SecurityHeaders)

	// WebSocket endpoint
	router.Handle("/ws",
		rateLimiter.IPRateLimitMiddleware(middleware.WebSocketUpgradeLimit)(wsHandler))

	// Game API
	api := router.PathPrefix("/api").Subrouter()

	// Creation is reserved for the matchmaker service
	createAPI := api.PathPrefix("/games").Subrouter()
	createAPI.Use(middleware.RequireServiceKey(cfg.Service.APIKey))
	createAPI.Use(rateLimiter.IPRateLimitMiddleware(middleware.GameCreationLimit))
	createAPI.HandleFunc("", gameHandler.CreateGame).Methods("POST")

	api.HandleFunc("/games/{gameId}", gameHandler.GetGame).Methods("GET")

	// Operational endpoints
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.Frontend.URL},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Api-Key"},
		AllowCredentials: true,
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("machineId", bus.MachineID()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
