package main

import (
	"chat-gateway/internal/api/handlers"
	"chat-gateway/internal/app"
	"chat-gateway/internal/auth"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/badgerstore"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/repository/filestore"
	"chat-gateway/internal/repository/memory"
	"chat-gateway/internal/repository/postgres"
	"chat-gateway/internal/service/llm"
	"chat-gateway/internal/service/quota"
	"chat-gateway/internal/service/search"
	"chat-gateway/internal/service/stats"
	userService "chat-gateway/internal/service/user"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func enableCORS(origin string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+handlers.ConversationIDHeader)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		}
	}
}

// openDocumentStore selects the persistence backend configured in storage.driver
func openDocumentStore(cfg config.StorageConfig) (db.DocumentStore, error) {
	switch cfg.Driver {
	case config.StoragePostgres:
		return postgres.NewPostgresDB(cfg.Postgres)
	case config.StorageBadger:
		if cfg.Badger.InMemory {
			return badgerstore.Open(badgerstore.InMemoryConfig())
		}
		return badgerstore.Open(badgerstore.DefaultConfig(cfg.Badger.Path))
	case config.StorageFile:
		return filestore.New(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func main() {
	if err := run(); err != nil {
		logger.Log.WithError(err).Fatal("Server stopped with error")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appConfig, err := config.LoadConfig(getEnv("CONFIG_PATH", "config.yml"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Log.WithField("driver", appConfig.Storage.Driver).Info("Opening document store")
	store, err := openDocumentStore(appConfig.Storage)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}

	database, err := memory.Open(ctx, store)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to load state: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Log.WithError(err).Error("Failed to persist state on shutdown")
		}
	}()

	var sampler stats.ResourceSampler
	if procSampler, err := stats.NewProcSampler(); err != nil {
		logger.Log.WithError(err).Warn("Resource sampling disabled")
	} else {
		sampler = procSampler
	}

	backend := llm.NewOllamaClient(appConfig.Backend)
	cfg := app.NewConfig(database, appConfig, backend, sampler)

	users := userService.NewUserService(database, cfg.Registry)
	if seeded, err := users.SeedAdmin(appConfig.Auth.AdminUsername, appConfig.Auth.AdminPassword); err != nil {
		return fmt.Errorf("failed to seed admin: %w", err)
	} else if !seeded {
		logger.Log.Debug("Admin seed skipped")
	}

	tokens := auth.NewTokenManager(appConfig.Auth.JWTSecret, appConfig.Auth.TokenExpiration)
	chatHandler := handlers.NewChatHandlers(cfg, search.NewClient(appConfig.Search))
	userHandler := handlers.NewUserHandlers(users)
	adminHandler := handlers.NewAdminHandlers(users, cfg.Stats)

	cors := enableCORS(appConfig.Server.AllowedOrigin)
	authed := func(h http.HandlerFunc) http.HandlerFunc { return cors(tokens.Middleware(database)(h)) }
	admin := func(h http.HandlerFunc) http.HandlerFunc { return authed(auth.AdminOnly(h)) }

	// Create new ServeMux to use Go 1.22+ routing features for path parameters
	mux := http.NewServeMux()

	// CORS preflight for every API route
	mux.HandleFunc("OPTIONS /api/", cors(func(w http.ResponseWriter, r *http.Request) {}))

	// Public routes
	mux.HandleFunc("POST /api/login", cors(auth.NewLoginHandler(tokens, users).ServeHTTP))
	mux.HandleFunc("GET /api/health", cors(handlers.HealthHandler))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Protected routes
	mux.HandleFunc("POST /api/chat/send", authed(chatHandler.ChatStreamHandler))
	mux.HandleFunc("POST /api/websearch", authed(chatHandler.WebsearchHandler))
	mux.HandleFunc("POST /api/deepsearch", authed(chatHandler.DeepsearchHandler))
	mux.HandleFunc("POST /api/stop", authed(chatHandler.StopHandler))
	mux.HandleFunc("GET /api/models", authed(chatHandler.ModelsHandler))
	mux.HandleFunc("GET /api/chats", authed(chatHandler.GetConversationsHandler))
	mux.HandleFunc("GET /api/chats/{id}", authed(chatHandler.GetConversationHandler))
	mux.HandleFunc("PUT /api/chats/{id}/title", authed(chatHandler.RenameConversationHandler))
	mux.HandleFunc("DELETE /api/chats/{id}", authed(chatHandler.DeleteConversationHandler))
	mux.HandleFunc("GET /api/user/me", authed(userHandler.MeHandler))
	mux.HandleFunc("POST /api/user/profile", authed(userHandler.UpdateProfileHandler))

	// Admin routes
	mux.HandleFunc("GET /api/admin/users", admin(adminHandler.ListUsersHandler))
	mux.HandleFunc("POST /api/admin/users", admin(adminHandler.CreateUserHandler))
	mux.HandleFunc("GET /api/admin/users/{id}", admin(adminHandler.GetUserHandler))
	mux.HandleFunc("DELETE /api/admin/users/{id}", admin(adminHandler.DeleteUserHandler))
	mux.HandleFunc("PUT /api/admin/users/{id}/quota", admin(adminHandler.SetQuotaHandler))
	mux.HandleFunc("GET /api/admin/stats", admin(adminHandler.StatsHandler))
	mux.HandleFunc("GET /api/admin/stats/models/{model}", admin(adminHandler.ModelStatsHandler))

	server := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	watcher, err := config.NewPromptWatcher(appConfig.Path, cfg.Prompts.Update)
	if err != nil {
		logger.Log.WithError(err).Warn("Prompt hot reload disabled")
	}
	scheduler := quota.NewScheduler(cfg.Ledger, cfg.Stats, appConfig.Quota.ResetHours)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.WithFields(logrus.Fields{
			"port":    appConfig.Server.Port,
			"hosts":   appConfig.Backend.Hosts(),
			"storage": appConfig.Storage.Driver,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return scheduler.Run(gctx) })

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error { return autosave(gctx, database, appConfig.Server.AutosaveEvery) })

	return g.Wait()
}

// autosave flushes every document periodically until ctx is done
func autosave(ctx context.Context, database db.Database, every time.Duration) error {
	if every <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := database.Flush(ctx); err != nil {
				logger.Log.WithError(err).Error("Autosave failed")
				continue
			}
			logger.Log.Debug("Autosave completed")
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
