package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"kinobot/internal/bot"
	"kinobot/internal/catalog"
	"kinobot/internal/config"
	"kinobot/internal/gate"
	"kinobot/internal/ingest"
	"kinobot/internal/legacy"
	"kinobot/internal/membership"
	"kinobot/internal/metrics"
	"kinobot/internal/premium"
	"kinobot/internal/rotation"
	"kinobot/internal/session"
	"kinobot/internal/storage"
	"kinobot/internal/subscription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("bot failed", "error", err)
		os.Exit(1)
	}
	log.Info("bot stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if cfg.MigrateLegacyOnStart {
		if err := importLegacy(ctx, cfg, store, log); err != nil {
			return err
		}
	}

	m := metrics.New(prometheus.NewRegistry())

	premiumSvc := premium.New(store, premium.Defaults{
		Days:       cfg.PremiumDays,
		Price:      cfg.DefaultPremiumPrice,
		CardNumber: cfg.DefaultCardNumber,
		CardOwner:  cfg.DefaultCardOwner,
	}, log)
	if err := premiumSvc.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("premium defaults: %w", err)
	}

	sessions, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	api, err := bot.NewAPI(cfg.TelegramBotToken)
	if err != nil {
		return err
	}
	log.Info("authorized", "bot", api.Self.UserName)

	catalogSvc := catalog.New(store, m, log)
	manager := rotation.NewManager(store, rotation.NewSelector(nil), log, rotation.WithLimit(cfg.DailyChannelLimit))
	reconciler := subscription.NewReconciler(membership.NewTelegram(api), store, cfg.MembershipTimeout, m, log)
	enforcer := gate.New(store, premiumSvc, manager, reconciler, m, log)

	b := bot.New(api, bot.Deps{
		Store:    store,
		Catalog:  catalogSvc,
		Gate:     enforcer,
		Rotation: manager,
		Premium:  premiumSvc,
		Sessions: sessions,
		Metrics:  m,
	}, cfg, log)

	sched := ingest.New(store, catalogSvc, b, cfg.AdminIDs, m, log)
	sched.SetTickInterval(cfg.IngestTick)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting bot", "storage", cfg.StorageDriver, "daily_channel_limit", cfg.DailyChannelLimit)
		b.Run(ctx)
		return nil
	})
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageDriver == config.DriverMongo {
		s, err := storage.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		return s, nil
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	s, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	return s, nil
}

// openSessions uses Redis when configured so conversation state survives restarts.
func openSessions(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	if cfg.RedisAddr == "" {
		return session.NewMemory(session.DefaultTTL), func() {}, nil
	}
	r, err := session.NewRedis(ctx, session.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = r.Close() }, nil
}

func importLegacy(ctx context.Context, cfg *config.Config, store storage.Storage, log *slog.Logger) error {
	db, err := legacy.Open(cfg.LegacyDBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	rep, err := legacy.Import(ctx, db, store, cfg.MigrateLegacyForce, log)
	if err != nil {
		return fmt.Errorf("legacy import: %w", err)
	}
	if rep.Skipped {
		log.Info("legacy import skipped, store already has data")
		return nil
	}
	log.Info("legacy import finished", "counts", rep.Counts)
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
