// monitor-service — polls the Vinted catalog for user-registered searches
// and notifies the matching Telegram chat about every newly listed item.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"vintedwatch/monitor-service/internal/catalog"
	"vintedwatch/monitor-service/internal/config"
	"vintedwatch/monitor-service/internal/db"
	"vintedwatch/monitor-service/internal/engine"
	"vintedwatch/monitor-service/internal/logging"
	"vintedwatch/monitor-service/internal/notify"
	"vintedwatch/monitor-service/internal/scheduler"
	"vintedwatch/monitor-service/internal/store"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Service: "monitor-service",
		Version: "1.0.0",
	})
}

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Durable stores ─────────────────────────────────────────────
	// Postgres when DATABASE_URL is set, JSON file otherwise. A Redis
	// seen store takes over dedup when REDIS_URL is set.
	var (
		registry store.SearchRegistry
		seen     store.SeenStore
	)

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres connect failed", zap.Error(err))
		}
		defer pool.Close()

		pg, err := store.NewPostgresStore(ctx, pool)
		if err != nil {
			log.Fatal("postgres store init failed", zap.Error(err))
		}
		registry, seen = pg, pg
		log.Info("state backend: postgres")
	} else {
		js, err := store.NewJSONStore(cfg.StateFile)
		if err != nil {
			log.Fatal("state file init failed", zap.Error(err))
		}
		registry, seen = js, js
		log.Info("state backend: json file", zap.String("path", cfg.StateFile))
	}

	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connect failed", zap.Error(err))
		}
		defer rdb.Close()

		seen = store.NewRedisSeenStore(rdb)
		log.Info("seen store: redis")
	}

	// ── Chat platform ──────────────────────────────────────────────
	// The bot authorises during construction; once it exists the sink is
	// ready and the scheduler may start ticking.
	bot, err := notify.NewTelegramBot(cfg.TelegramToken, registry, log)
	if err != nil {
		log.Fatal("telegram init failed", zap.Error(err))
	}
	go bot.Listen(ctx)

	// ── Engine and schedule ────────────────────────────────────────
	client := catalog.NewClient(cfg.CatalogBaseURL, 0)
	eng := engine.New(client, registry, seen, bot, log, cfg.MaxPerTick)

	sched := scheduler.New(eng, log, cfg.PollIntervalSeconds)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("scheduler start failed", zap.Error(err))
	}
	defer sched.Stop()

	// ── Health endpoint ────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
}
