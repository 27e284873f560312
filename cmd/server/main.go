package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-server/internal/auth"
	"chat-server/internal/backplane"
	"chat-server/internal/chat"
	"chat-server/internal/config"
	"chat-server/internal/database"
	"chat-server/internal/handlers"
	ws "chat-server/internal/websocket"
	"chat-server/pkg/logger"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.Log.Level, cfg.Log.Environment); err != nil {
		panic(err)
	}
	defer logger.Sync()

	store, err := database.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bp backplane.Backplane
	if cfg.Redis.Addr != "" {
		rbp, err := backplane.NewRedisBackplane(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		if err != nil {
			logger.Fatal("Failed to connect to redis backplane", logger.ErrorField(err))
		}
		defer rbp.Close()
		bp = rbp
		logger.Info("Backplane enabled", logger.String("addr", cfg.Redis.Addr))
	}

	hub := ws.NewHub(bp)

	registry := chat.NewRegistry(hub)
	rooms := chat.NewRoomRouter(store, hub, cfg.Chat.HistoryLimit)
	presence := chat.NewPresenceTracker(store, hub, registry)
	typing := chat.NewTypingTracker(hub, registry, cfg.Chat.TypingExpiry, cfg.Chat.TypingStopOnSwitch)
	messages := chat.NewMessageRouter(store, hub, registry, cfg.Chat.HistoryLimit)
	dispatcher := chat.NewDispatcher(registry, rooms, presence, typing, messages, hub, cfg.Chat.PersistTimeout)

	hub.OnEvent = dispatcher.Dispatch
	hub.OnDisconnect = dispatcher.HandleDisconnect

	go typing.RunSweeper(ctx)

	if bp != nil {
		go func() {
			if err := bp.Subscribe(ctx, hub.ApplyRemote); err != nil && ctx.Err() == nil {
				logger.Error("Backplane subscription terminated", logger.ErrorField(err))
			}
		}()
	}

	authService := auth.NewService(store, cfg)
	authHandlers := handlers.NewAuthHandlers(authService)
	directoryHandlers := handlers.NewDirectoryHandlers(store, authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", authHandlers.Register)
	mux.HandleFunc("/api/auth/login", authHandlers.Login)
	mux.HandleFunc("/api/users", directoryHandlers.ListUsers)
	mux.HandleFunc("/api/channels", directoryHandlers.ListChannels)
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server started", logger.String("addr", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", logger.ErrorField(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", logger.ErrorField(err))
		os.Exit(1)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
