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

	"github.com/redis/go-redis/v9"

	"physics-chat/internal/config"
	"physics-chat/internal/database"
	"physics-chat/internal/handlers"
	"physics-chat/internal/middleware"
	"physics-chat/internal/render"
	"physics-chat/internal/router"
	"physics-chat/internal/services"
	"physics-chat/internal/session"
	"physics-chat/internal/websocket"
)

func main() {
	log.Println("🚀 Starting Physics Chat...")

	// ──── Step 1: Load Environment Variables ────
	cfg := loadConfig()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(services.GeminiConfig{
		APIKey:          cfg.GeminiAPIKey,
		Model:           cfg.GeminiModel,
		Temperature:     cfg.GeminiTemperature,
		MaxOutputTokens: cfg.GeminiMaxOutputTokens,
	})
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiService.Close()
	log.Printf("✓ Gemini client initialized (model %s)", cfg.GeminiModel)

	// ──── Step 3: Optional Redis for live update fan-out ────
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClient.Close()
		log.Println("✓ Redis connected")
	}

	// ──── Step 4: Sessions ────
	sessionCookie, err := middleware.NewSessionCookie(cfg.SessionSecret, cfg.Env == "production")
	if err != nil {
		log.Fatalf("✗ Session cookie setup failed: %v", err)
	}
	if cfg.SessionSecret == "" {
		log.Println("  SESSION_SECRET not set, sessions will not survive a restart")
	}
	sessions := session.NewRegistry(cfg.SessionIdleTTL)
	sessions.Start()
	log.Printf("✓ Session registry started (idle TTL %s)", cfg.SessionIdleTTL)

	// ──── Step 5: Chat pipeline ────
	wsHub := websocket.NewHub(redisClient)
	chatService := services.NewChatService(geminiService, sessions, wsHub)

	renderer, err := render.New()
	if err != nil {
		log.Fatalf("✗ Page templates failed to load: %v", err)
	}
	chatHandler := handlers.NewChatHandler(chatService, renderer)

	// ──── Step 6: Start HTTP Server ────
	r := router.New(sessionCookie, chatHandler, wsHub.Handler(chatService))

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// A submission blocks until Gemini answers.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		sessions.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Physics Chat ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

// loadConfig turns a missing required setting into a fatal startup error.
func loadConfig() (cfg *config.Config) {
	defer func() {
		if r := recover(); r != nil {
			log.Fatalf("✗ Configuration error: %v. Set GEMINI_API_KEY (or API_KEY) in the environment or .env file.", r)
		}
	}()
	return config.Load()
}
