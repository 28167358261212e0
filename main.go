// Package main our entry point.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/johndosdos/haven/internal/broker"
	"github.com/johndosdos/haven/internal/chat"
	"github.com/johndosdos/haven/internal/config"
	"github.com/johndosdos/haven/internal/database"
	"github.com/johndosdos/haven/internal/diary"
	"github.com/johndosdos/haven/internal/handler"
	"github.com/johndosdos/haven/internal/memstore"
	"github.com/johndosdos/haven/internal/quotecache"
	ratelimiter "github.com/johndosdos/haven/internal/rate_limiter"
	"github.com/johndosdos/haven/internal/therapy"
	ws "github.com/johndosdos/haven/internal/websocket"
)

// stores groups the storage backend behind the service interfaces.
type stores struct {
	chat     chat.Store
	therapy  therapy.Store
	entries  diary.Store
	quotes   diary.QuoteStore
	accounts handler.AccountStore
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Storage == config.StorageMemory {
		slog.Warn("using in-memory storage; data is lost on restart")
		s := memstore.New()
		s.SeedQuotes()
		return &stores{chat: s, therapy: s, entries: s, quotes: s, accounts: s, close: func() {}}, nil
	}

	slog.Info("initializing database connection...")
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	q := database.New(pool)
	return &stores{chat: q, therapy: q, entries: q, quotes: q, accounts: q, close: pool.Close}, nil
}

// openBroker connects to NATS when NATS_URL is set. Without it deliveries
// stay in process, which is only correct for a single instance.
func openBroker(ctx context.Context, cfg *config.Config) (broker.Broker, func(), error) {
	if cfg.NATSURL == "" {
		slog.Warn("NATS_URL is not set; using the in-process broker")
		return broker.NewLocal(), func() {}, nil
	}

	slog.Info("initializing NATS connection...")
	var natsCredentials []nats.Option
	if cfg.NATSCred != "" {
		natsCredentials = append(natsCredentials, nats.UserCredentials(cfg.NATSCred))
	} else if cfg.NATSUser != "" && cfg.NATSPassword != "" {
		natsCredentials = append(natsCredentials, nats.UserInfo(cfg.NATSUser, cfg.NATSPassword))
	}
	natsCredentials = append(natsCredentials, nats.Timeout(5*time.Second))

	conn, err := nats.Connect(cfg.NATSURL, natsCredentials...)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	b, err := broker.NewJetStream(ctx, js)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	drain := func() {
		if err := conn.Drain(); err != nil {
			slog.Error("couldn't drain NATS conn", "error", err)
		}
	}
	return b, drain, nil
}

func openQuoteCache(cfg *config.Config) (diary.SeenQuotes, func()) {
	if cfg.RedisURL == "" {
		return quotecache.NewMemory(), func() {}
	}

	cache, err := quotecache.NewRedis(cfg.RedisURL)
	if err != nil {
		slog.Warn("redis unavailable; remembering seen quotes in memory", "error", err)
		return quotecache.NewMemory(), func() {}
	}
	return cache, func() { cache.Close() }
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting application...", "storage", cfg.Storage)

	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("could not open storage", "error", err)
		os.Exit(1)
	}
	defer st.close()

	b, drain, err := openBroker(ctx, cfg)
	if err != nil {
		slog.Error("could not connect to nats", "error", err)
		os.Exit(1)
	}
	defer drain()

	seen, closeCache := openQuoteCache(cfg)
	defer closeCache()

	chatSvc := chat.NewService(st.chat, chat.Config{
		MaxGroupSize:  cfg.Chat.MaxGroupSize,
		MinGroupSize:  cfg.Chat.MinGroupSize,
		FlagThreshold: cfg.Chat.FlagThreshold,
		HistoryLimit:  cfg.Chat.HistoryLimit,
		WaitTimeout:   cfg.Chat.WaitTimeout,
		SessionTTL:    chat.DefaultConfig().SessionTTL,
	})
	therapySvc := therapy.NewService(st.therapy)
	diarySvc := diary.NewService(st.entries, st.quotes, seen)

	// hub.Run is our central hub that is always listening for client related events.
	hub := ws.NewHub(chatSvc, therapySvc, b, ws.Config{
		ResumeGrace:       cfg.Chat.ResumeGrace,
		MessagesPerMinute: cfg.Chat.MessagesPerMinute,
	})
	therapySvc.SetNotifier(hub)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubErr := make(chan error, 1)
	go func() { hubErr <- hub.Run(hubCtx) }()

	limiter := ratelimiter.NewIPRateLimiter(cfg.HTTPRequestsPerMinute, time.Minute, ratelimiter.CleanupOpts{
		TTL:      10 * time.Minute,
		Interval: time.Minute,
	})
	defer limiter.Cancel()

	// WriteTimeout stays unset: it would cut long-lived websocket connections.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       30 * time.Second,
		Handler: handler.NewRouter(handler.Deps{
			Chat:     chatSvc,
			Therapy:  therapySvc,
			Diary:    diarySvc,
			Accounts: st.accounts,
			Hub:      hub,
			Tokens: handler.TokenConfig{
				Secret:         cfg.JWTSecret,
				Issuer:         cfg.JWTIssuer,
				TTL:            cfg.AccessTokenTTL,
				ProviderSecret: cfg.ProviderJWTSecret,
			},
			AllowedOrigin: cfg.AllowedOrigin,
			Limiter:       limiter,
		}),
	}

	go func() {
		slog.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received; shutting down...")
	case err := <-hubErr:
		slog.Error("hub stopped unexpectedly; shutting down...", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	stopHub()
	<-hub.Done()

	slog.Info("server stopped")
	if exitCode != 0 {
		st.close()
		os.Exit(exitCode)
	}
}
