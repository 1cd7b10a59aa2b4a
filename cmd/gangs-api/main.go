package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gangs/internal/api"
	"gangs/internal/config"
	"gangs/internal/db"
	"gangs/internal/gang"
	"gangs/internal/notify"
	"gangs/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadServerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var (
		st      gang.Store
		economy gang.Economy
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		st = store.NewPostgres(pool, logger)
		economy = store.NewPGWallet(pool)
	default:
		lite, err := store.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			logger.Error("sqlite open failed", "path", cfg.SQLitePath, "err", err)
			os.Exit(1)
		}
		defer lite.Close()
		st = lite
		economy = lite
	}

	hub := notify.NewHub(logger)
	notifiers := notify.Multi{hub}
	var publisher *notify.Redis
	if cfg.RedisAddr != "" {
		rdb, err := notify.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			logger.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		publisher = notify.NewRedis(rdb, cfg.RedisChannel, logger)
		notifiers = append(notifiers, publisher)
	}

	gangs := gang.NewDirectory(
		gang.WithLogger(logger),
		gang.WithEconomy(economy),
		gang.WithPresence(hub),
		gang.WithNotifier(notifiers),
	)

	records, err := st.LoadGangs(ctx)
	if err != nil {
		logger.Error("load gangs failed", "err", err)
		os.Exit(1)
	}
	rep := gangs.Load(records)
	logger.Info("gangs loaded",
		"gangs", rep.Gangs,
		"members", rep.Members,
		"skipped_gangs", rep.SkippedGangs,
		"skipped_members", rep.SkippedMembers,
		"repaired", rep.Repaired,
	)
	if err := gangs.CheckConsistency(); err != nil {
		logger.Error("directory inconsistent after load", "err", err)
		os.Exit(1)
	}

	save := func(ctx context.Context) error {
		return st.SaveGangs(ctx, gangs.Snapshot())
	}

	server := api.New(cfg, logger, gangs, hub)
	server.SetSaver(save)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if !cfg.ExternalBilling {
		go gangs.RunBilling(ctx, cfg.BillingEvery)
	}
	go autosave(ctx, logger, cfg.SaveEvery, save)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("gangs api listening", "addr", cfg.Addr, "store", cfg.Store)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}

	finalCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := save(finalCtx); err != nil {
		logger.Error("final save failed", "err", err)
	} else {
		logger.Info("gangs saved", "gangs", gangs.Len())
	}
	if publisher != nil {
		publisher.Wait()
	}
}

func autosave(ctx context.Context, logger *slog.Logger, every time.Duration, save func(context.Context) error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := save(ctx); err != nil {
				logger.Error("autosave failed", "err", err)
				continue
			}
			logger.Debug("autosave complete")
		}
	}
}
