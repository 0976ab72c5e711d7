package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cadst/MPS-XRPL-sub000/internal/config"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/catalog"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/companies"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/ledger"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/plays"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/quota"
	"github.com/cadst/MPS-XRPL-sub000/internal/infra/db"
	httpx "github.com/cadst/MPS-XRPL-sub000/internal/infra/http"
	"github.com/cadst/MPS-XRPL-sub000/internal/infra/logger"
	"github.com/cadst/MPS-XRPL-sub000/internal/infra/notify"
	"github.com/cadst/MPS-XRPL-sub000/internal/infra/xrpl"
	"github.com/cadst/MPS-XRPL-sub000/internal/settle"
	"github.com/cadst/MPS-XRPL-sub000/internal/stream"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/example.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	contentRepo := catalog.NewRepo(pool)
	companyRepo := companies.NewRepo(pool)
	quotaRepo := quota.NewRepo(pool)
	playRepo := plays.NewRepo(pool)
	ledgerRepo := ledger.NewRepo(pool)

	codec := stream.NewCodec(cfg.Stream.TokenSecret)
	manager := stream.NewManager(log, codec, contentRepo, companyRepo, playRepo, quotaRepo, ledgerRepo)
	streamHandler := stream.NewHandler(log, manager, cfg.Stream.MediaDir)

	xrplClient := xrpl.NewClient(cfg.XRPL.RPCURL, cfg.XRPL.Account, cfg.XRPL.Secret,
		time.Duration(cfg.XRPL.ConfirmTimeout)*time.Second)

	notifier, err := notify.New(log, cfg.Telegram.Token, cfg.Telegram.AdminChatID)
	if err != nil {
		log.Error("telegram notifier init failed", "err", err)
		return
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		log.Warn("invalid timezone, using UTC", "tz", cfg.App.Timezone)
		loc = time.UTC
	}

	batcher := settle.NewBatcher(log, ledgerRepo, companyRepo, xrplClient)
	scheduler := settle.NewScheduler(log, pool, batcher, notifier, cfg.Settle.Hour, loc)
	settleHandler := settle.NewHandler(log, scheduler, ledgerRepo, cfg.HTTP.AdminToken)

	if cfg.Settle.Enabled {
		go scheduler.Start(ctx)
		log.Info("settlement scheduler started", "hour", cfg.Settle.Hour)
	}

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, streamHandler, settleHandler)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
