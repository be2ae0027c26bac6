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

	"visionchat-backend/internal/config"
	"visionchat-backend/internal/gateway"
	"visionchat-backend/internal/handlers"
	"visionchat-backend/internal/media"
	"visionchat-backend/internal/pipeline"
	"visionchat-backend/internal/router"
	"visionchat-backend/internal/session"
	"visionchat-backend/internal/websocket"
	"visionchat-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting VisionChat Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize Gemini Client ────
	gemini, err := gateway.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer gemini.Close()
	log.Printf("✓ Gemini client initialized (%s)", cfg.GeminiModel)

	// ──── Step 3: Initialize Media Decoder ────
	decoder := media.NewDecoder(cfg.FFmpegPath, cfg.FFprobePath)
	log.Println("✓ Media decoder ready")

	// ──── Step 4: Initialize Session & Pipeline ────
	sess := session.NewManager()
	pipe := pipeline.New(decoder, gemini, cfg.MaxFrames, cfg.ExtractWorkers)

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub()
	log.Println("✓ WebSocket hub started")

	// ──── Step 6: Start Worker Pool ────
	workerPool := worker.NewPool(pipe, sess, wsHub, 1)
	workerPool.Start()
	log.Println("✓ Worker pool started")

	// ──── Step 7: Initialize Handlers ────
	videoHandler := handlers.NewVideoHandler(sess, decoder, workerPool, cfg)
	chatHandler := handlers.NewChatHandler(sess, gemini)

	// ──── Step 8: Start HTTP Server ────
	r := router.New(videoHandler, chatHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  5 * time.Minute, // uploads can be large
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ VisionChat Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
