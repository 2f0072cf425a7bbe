package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/staffboard/staffboard-backend/config"
	accountshttp "github.com/staffboard/staffboard-backend/internal/accounts/http"
	accountsrepo "github.com/staffboard/staffboard-backend/internal/accounts/repository"
	accountsvc "github.com/staffboard/staffboard-backend/internal/accounts/service"
	"github.com/staffboard/staffboard-backend/internal/api/http/middleware"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/bootstrap"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	kanbanhttp "github.com/staffboard/staffboard-backend/internal/kanban/http"
	kanbanrepo "github.com/staffboard/staffboard-backend/internal/kanban/repository"
	kanbansvc "github.com/staffboard/staffboard-backend/internal/kanban/service"
	"github.com/staffboard/staffboard-backend/internal/monitor"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
	"github.com/staffboard/staffboard-backend/pkg/translator"
	"go.uber.org/zap"
)

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

	bootstrap.SetGinMode(cfg.App.Environment)
	translator.InitTranslator(translator.Config{
		SupportedLanguages: []string{translator.LanguageEn, translator.LanguageFr},
	})

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
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	rdb, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("open redis", zap.Error(err))
	}
	defer rdb.Close()

	table := domain.DefaultStatusTable()
	if cfg.Kanban.StatusTablePath != "" {
		if table, err = domain.LoadStatusTable(cfg.Kanban.StatusTablePath); err != nil {
			logger.Fatal("status table", zap.Error(err))
		}
	}
	logger.Info("status table loaded", zap.Int("version", table.Version), zap.Int("rules", len(table.Rules)))

	// Accounts
	users := accountsrepo.NewUserRepository(db)
	pending := accountsrepo.NewPendingRepository(rdb)
	outbox := notify.NewOutboxRepository(db)
	issuer := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	accounts := accountsvc.New(users, pending, outbox, issuer, accountsvc.Options{
		OTPTTL:         cfg.OTP.TTL,
		OTPLength:      cfg.OTP.Length,
		MaxAttempts:    cfg.OTP.MaxAttempts,
		ResendInterval: cfg.OTP.ResendInterval,
		BcryptCost:     cfg.Auth.BcryptCost,
	}, logger.Named("accounts"))
	if err := accounts.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, cfg.Auth.AdminName); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}

	var verifier auth.Verifier = issuer
	if cfg.Auth.Provider == "firebase" {
		client, err := auth.InitializeFirebase(ctx, cfg.Auth.FirebaseCredentialsPath)
		if err != nil {
			logger.Fatal("firebase", zap.Error(err))
		}
		verifier = auth.NewFirebaseVerifier(client, accounts)
	}
	verifier = accountsvc.NewActiveVerifier(verifier, users)

	// Kanban
	bus := events.NewBus(rdb, logger.Named("events"))
	kanban := kanbansvc.New(kanbansvc.Stores{
		Projects: kanbanrepo.NewProjectRepository(db),
		Boards:   kanbanrepo.NewBoardRepository(db),
		Columns:  kanbanrepo.NewColumnRepository(db),
		Tasks:    kanbanrepo.NewTaskRepository(db),
		Comments: kanbanrepo.NewCommentRepository(db),
		Activity: kanbanrepo.NewActivityRepository(db),
	}, table, bus, logger.Named("kanban"))

	collector := monitor.NewCollector(db, rdb, pending, outbox, logger.Named("monitor"))

	router, err := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:    cfg.App.ServiceName,
		Version:        cfg.App.Version,
		CORSOrigins:    cfg.Server.CORSOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		Logger:         logger,
		DB:             pool,
		Redis:          rdb,
		Verifier:       verifier,
		AuthLimiter:    middleware.NewRateLimiter(6*time.Second, 10),
		Accounts:       accountshttp.New(accounts, logger.Named("accounts")),
		Kanban:         kanbanhttp.New(kanban, bus, logger.Named("kanban")),
		Monitor:        monitor.NewHandler(collector, logger.Named("monitor")),
	})
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}

	if cfg.Outbox.InProcess {
		mailer, err := notify.NewMailer(ctx, cfg.Mail, logger.Named("mail"))
		if err != nil {
			logger.Fatal("mailer", zap.Error(err))
		}
		renderer, err := notify.NewRenderer(cfg.Mail.From, cfg.App.BaseURL)
		if err != nil {
			logger.Fatal("templates", zap.Error(err))
		}
		scheduler := notify.NewScheduler(logger.Named("cron"))
		err = bootstrap.RegisterJobs(scheduler, bootstrap.JobDeps{
			Dispatcher: notify.NewDispatcher(outbox, mailer, renderer, notify.DispatcherOptions{
				BatchSize:   cfg.Outbox.BatchSize,
				MaxAttempts: cfg.Outbox.MaxAttempts,
				CodeTTL:     cfg.OTP.TTL,
			}, logger.Named("outbox")),
			OutboxSchedule: cfg.Outbox.Schedule,
			Logger:         logger,
		})
		if err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
