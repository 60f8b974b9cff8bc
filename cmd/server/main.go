// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/tonlobby/tonlobby/internal/cache"
	"github.com/tonlobby/tonlobby/internal/config"
	"github.com/tonlobby/tonlobby/internal/database"
	"github.com/tonlobby/tonlobby/internal/handlers"
	"github.com/tonlobby/tonlobby/internal/invites"
	"github.com/tonlobby/tonlobby/internal/watcher"
	"github.com/tonlobby/tonlobby/internal/ws"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if os.Getenv("DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store database.Store
	if cfg.DatabaseURL != "" {
		pg, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		store = pg
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store = database.NewMemory()
	}

	var queue *cache.Queue
	if cfg.RedisAddr != "" {
		q, err := cache.Connect(cfg.RedisAddr, cfg.RedisDB, "")
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer q.Close()
		queue = q
	}

	hub := ws.NewHub(logger)
	srv := handlers.NewServer(store, hub, queue, logger)

	sched, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatalf("scheduler: %v", err)
	}
	if cfg.TonAPIURL != "" {
		w := watcher.New(store, hub, logger, cfg.TonAPIURL, cfg.TonAPIKey, cfg.ConfirmationsRequired)
		if _, err := sched.NewJob(
			gocron.DurationJob(watcher.DefaultInterval),
			gocron.NewTask(func() {
				if err := w.Tick(ctx); err != nil {
					logger.WithError(err).Warn("watcher tick failed")
				}
			}),
		); err != nil {
			logger.Fatalf("watcher job: %v", err)
		}
	} else {
		logger.Info("TON_API_URL not set, payment watcher disabled")
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(invites.SweepInterval),
		gocron.NewTask(func() { srv.Invites.Sweep(ctx) }),
	); err != nil {
		logger.Fatalf("invite sweep job: %v", err)
	}
	sched.Start()
	defer sched.Shutdown()

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Running on :%s", cfg.Port)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
}
