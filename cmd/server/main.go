package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/centsible/backend/internal/analytics"
	"github.com/centsible/backend/internal/api/handlers"
	"github.com/centsible/backend/internal/api/middleware"
	"github.com/centsible/backend/internal/config"
	"github.com/centsible/backend/internal/game/categories"
	"github.com/centsible/backend/internal/game/detective"
	"github.com/centsible/backend/internal/game/quiz"
	"github.com/centsible/backend/internal/logger"
	"github.com/centsible/backend/internal/messages"
	"github.com/centsible/backend/internal/progression"
	"github.com/centsible/backend/internal/store"
	fsstore "github.com/centsible/backend/internal/store/firestore"
	"github.com/centsible/backend/internal/store/inmemory"
)

func main() {
	// Optional .env for local development; absent in production.
	_ = godotenv.Load()

	port := flag.String("port", "", "HTTP server port (overrides PORT env)")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	ctx := context.Background()

	// The store doubles as the transaction feed reader: both backends
	// implement store.Store and store.TransactionReader.
	var (
		st   store.Store
		txns store.TransactionReader
	)
	switch cfg.StoreBackend {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory store - all state is lost on restart")
		mem := inmemory.New()
		st, txns = mem, mem
	default:
		fs, err := fsstore.New(ctx, cfg.ProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Firestore")
		}
		defer func() {
			if err := fs.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close store")
			}
		}()
		st, txns = fs, fs
	}

	// Encouragement copy: generated when a model is configured, static
	// otherwise. The generator falls back to the pool on any error.
	var msgs messages.Generator = messages.NewStaticPool()
	if cfg.GeminiModel != "" {
		gen, err := messages.NewGeminiGenerator(ctx, cfg.GeminiModel, log)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini unavailable, using static messages")
		} else {
			msgs = gen
		}
	}

	periods := cfg.PeriodPolicy()
	prog := progression.NewEngine(st, log)

	catGame := categories.New(st, txns, prog, msgs, log)
	catGame.UsePeriod(periods)
	detGame := detective.New(st, txns, prog, log)
	detGame.UsePeriod(periods)
	quizGame := quiz.New(st, txns, prog, msgs, log)
	quizGame.UsePeriod(periods)

	rollups := analytics.New(txns, log)
	rollups.UsePeriod(periods)

	h := handlers.New(catGame, detGame, quizGame, prog, rollups, log)
	h.UsePeriod(periods)

	mux := http.NewServeMux()
	h.Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Auth is applied per-route in Register, so public endpoints stay open.
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreBackend).
			Str("week_anchor", periods.Anchor.String()).
			Msg("Starting games API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
