// Package main is the entry point for the chat API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/marketloop/chat-service/internal/broadcast"
	"github.com/marketloop/chat-service/internal/config"
	"github.com/marketloop/chat-service/internal/handler"
	"github.com/marketloop/chat-service/internal/middleware"
	natsclient "github.com/marketloop/chat-service/internal/nats"
	"github.com/marketloop/chat-service/internal/presence"
	"github.com/marketloop/chat-service/internal/realtime"
	"github.com/marketloop/chat-service/internal/service"
	"github.com/marketloop/chat-service/internal/store"
	"github.com/marketloop/chat-service/internal/store/memory"
	"github.com/marketloop/chat-service/internal/store/postgres"
	"github.com/marketloop/chat-service/pkg/logger"
	"github.com/marketloop/chat-service/pkg/tracing"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting chat API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-service", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Storage: postgres when a DSN is configured, in-memory otherwise.
	var (
		conversations store.ConversationStore
		memberships   store.MembershipStore
		messages      store.MessageStore
		storePinger   handler.Pinger
	)
	if cfg.PostgresDSN != "" {
		pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to connect to postgres", zap.Error(err))
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to ensure schema", zap.Error(err))
			os.Exit(1)
		}
		conversations = pg.Conversations()
		memberships = pg.Memberships()
		messages = pg.Messages()
		storePinger = pg
		log.Info("using postgres storage")
	} else {
		mem := memory.New()
		conversations = mem.Conversations()
		memberships = mem.Memberships()
		messages = mem.Messages()
		log.Info("using in-memory storage")
	}

	// Event transport: NATS when configured, in-process loopback
	// otherwise.
	var (
		publisher   broadcast.Publisher
		connChecker handler.ConnChecker
	)
	if cfg.NATSURL != "" {
		client, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		connChecker = client
		log.Info("using NATS event transport", zap.String("url", cfg.NATSURL))
	} else {
		loopback := broadcast.NewLoopback()
		publisher = loopback
		connChecker = loopback
		log.Info("using in-process event transport")
	}

	// Presence: redis when configured, in-memory otherwise.
	var tracker presence.Tracker
	if cfg.RedisAddr != "" {
		redisTracker, err := presence.NewRedisTracker(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PresenceTTL)
		if err != nil {
			log.Error("failed to connect to redis", zap.Error(err))
			os.Exit(1)
		}
		tracker = redisTracker
		log.Info("using redis presence tracking", zap.String("addr", cfg.RedisAddr))
	} else {
		tracker = presence.NewMemoryTracker(cfg.PresenceTTL)
	}

	// Realtime fan-out
	registry := realtime.NewRegistry()
	broadcaster := broadcast.New(publisher, registry, memberships, log)
	if err := broadcaster.Start(); err != nil {
		log.Error("failed to start event broadcaster", zap.Error(err))
		os.Exit(1)
	}
	defer broadcaster.Stop()

	// Display names come from JWT claims on the write path; the
	// directory only backfills rosters.
	directory := service.StaticDirectory{}

	// Initialize services
	receiptSvc := service.NewReceiptService(conversations, memberships, messages, broadcaster, log)
	messageSvc := service.NewMessageService(conversations, memberships, messages, broadcaster, log)
	membershipSvc := service.NewMembershipService(conversations, memberships, messageSvc, directory, broadcaster, log)
	conversationSvc := service.NewConversationService(conversations, memberships, receiptSvc, directory, broadcaster, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(storePinger, connChecker, version)
	conversationHandler := handler.NewConversationHandler(conversationSvc, receiptSvc, log)
	messageHandler := handler.NewMessageHandler(messageSvc, receiptSvc, log)
	memberHandler := handler.NewMemberHandler(membershipSvc, broadcaster, log)
	wsHandler := handler.NewWSHandler(registry, broadcaster, tracker, membershipSvc, receiptSvc, cfg.StorageTimeout, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Realtime
		r.Get("/ws", wsHandler.Serve)

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)
			r.Get("/unread-count", conversationHandler.UnreadCount)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/archive", conversationHandler.Archive)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Post("/read", messageHandler.MarkRead)
				r.Get("/unread-count", messageHandler.UnreadCount)

				// Membership
				r.Get("/members", memberHandler.List)
				r.Post("/members", memberHandler.Add)
				r.Delete("/members/{userId}", memberHandler.Remove)
				r.Put("/members/{userId}/role", memberHandler.ChangeRole)
				r.Put("/mute", memberHandler.Mute)
				r.Post("/typing", memberHandler.Typing)
			})
		})

		// Message edits and deletes address the message directly.
		r.Route("/messages/{id}", func(r chi.Router) {
			r.Put("/", messageHandler.Edit)
			r.Delete("/", messageHandler.Delete)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
