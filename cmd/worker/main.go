package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/staffboard/staffboard-backend/config"
	accountsrepo "github.com/staffboard/staffboard-backend/internal/accounts/repository"
	"github.com/staffboard/staffboard-backend/internal/bootstrap"
	"github.com/staffboard/staffboard-backend/internal/monitor"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
	"go.uber.org/zap"
)

// The worker delivers the notification outbox and runs housekeeping on a
// cron. `worker once` delivers one batch and exits.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := bootstrap.NewLogger(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      cfg.Database.ConnString(),
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer pool.Close()
	db := postgres.NewConnection(pool)
	defer db.Close()

	rdb, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("open redis", zap.Error(err))
	}
	defer rdb.Close()

	mailer, err := notify.NewMailer(ctx, cfg.Mail, logger.Named("mail"))
	if err != nil {
		logger.Fatal("mailer", zap.Error(err))
	}
	renderer, err := notify.NewRenderer(cfg.Mail.From, cfg.App.BaseURL)
	if err != nil {
		logger.Fatal("templates", zap.Error(err))
	}

	outbox := notify.NewOutboxRepository(db)
	pending := accountsrepo.NewPendingRepository(rdb)
	dispatcher := notify.NewDispatcher(outbox, mailer, renderer, notify.DispatcherOptions{
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		CodeTTL:     cfg.OTP.TTL,
	}, logger.Named("outbox"))

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "once":
			res, err := dispatcher.DeliverPending(ctx)
			if err != nil {
				logger.Fatal("deliver", zap.Error(err))
			}
			logger.Info("outbox delivered", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed), zap.Int("expired", res.Expired))
			return
		default:
			logger.Fatal("unknown command", zap.String("command", os.Args[1]))
		}
	}

	scheduler := notify.NewScheduler(logger.Named("cron"))
	err = bootstrap.RegisterJobs(scheduler, bootstrap.JobDeps{
		Dispatcher:     dispatcher,
		OutboxSchedule: cfg.Outbox.Schedule,
		Outbox:         outbox,
		Pending:        pending,
		Collector:      monitor.NewCollector(db, rdb, pending, outbox, logger.Named("monitor")),
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	scheduler.Start()
	<-ctx.Done()
	logger.Info("worker stopping")
	scheduler.Stop()
}
