package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/auth"
	"chat-relay/internal/config"
	"chat-relay/internal/database"
	"chat-relay/internal/handlers"
	"chat-relay/internal/relay"
	"chat-relay/internal/services"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	// Initialize history store
	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to open history store: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := auth.NewService(cfg)
	roomService := services.NewRoomService(db)

	// Relay core
	registry := relay.NewRegistry()
	messageRelay := relay.New(db, registry)
	coordinator := relay.NewCoordinator(db, registry)
	dispatcher := websocket.NewDispatcher(roomService, coordinator, messageRelay)

	// Initialize handlers
	roomHandlers := handlers.NewRoomHandlers(roomService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, dispatcher, cfg.WebSocket)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handlers.NewRouter(roomHandlers, wsHandlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	if authService.Enabled() {
		logger.Info("Handshake tokens required")
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error: %v", err)
	}
}

func openDatabase(cfg *config.Config) (database.Database, error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set; history is kept in memory")
		return database.NewMemoryDB(), nil
	}

	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
