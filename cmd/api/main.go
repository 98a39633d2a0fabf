package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"rollbook/internal/account"
	"rollbook/internal/attendance"
	"rollbook/internal/auth"
	"rollbook/internal/config"
	"rollbook/internal/handler"
	"rollbook/internal/httpmiddleware"
	"rollbook/internal/logging"
	"rollbook/internal/mailer"
	"rollbook/internal/metrics"
	"rollbook/internal/notify"
	"rollbook/internal/queue"
	"rollbook/internal/store"
	"rollbook/internal/student"
)

// backend is the persistence both domain services need.
type backend interface {
	account.Store
	student.Store
	attendance.Store
}

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.Production())
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.HealthChecker{}
	var db backend
	switch cfg.StorageBackend {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on restart")
		db = store.NewMemory()
	case "postgres":
		pg, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil && pg == nil {
			return err
		}
		if err != nil {
			logger.Warn("db not reachable", zap.Error(err))
		}
		defer func() { _ = pg.Close() }()
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx, pg.Client); err != nil {
				return err
			}
		}
		db = store.NewPostgres(pg.Client)
		checks["db"] = pg
	default:
		return errors.New("STORAGE_BACKEND must be postgres or memory")
	}

	var redisClient *store.Redis
	if cfg.StorageBackend != "memory" || cfg.QueueBackend != "memory" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		checks["redis"] = redisClient
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var (
		otps         account.OTPStore
		limiter      account.Limiter
		resetLimiter httpmiddleware.Limiter
	)
	if cfg.StorageBackend == "memory" {
		otps = account.NewMemoryOTPs()
		limiter = httpmiddleware.NewMemoryWindow(cfg.ForgotLimit, cfg.ForgotWindow)
		resetLimiter = httpmiddleware.NewMemoryWindow(cfg.ResetLimit, cfg.ResetWindow)
	} else {
		otps = account.NewRedisOTPs(redisClient.Client)
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, "ratelimit:forgot:", cfg.ForgotLimit, cfg.ForgotWindow)
		resetLimiter = httpmiddleware.NewRedisWindow(redisClient.Client, "ratelimit:reset:", cfg.ResetLimit, cfg.ResetWindow)
	}

	rec := metrics.New(prometheus.DefaultRegisterer)

	// The memory queue only exists in this process, so deliver from here.
	if cfg.QueueBackend == "memory" {
		worker := notify.NewWorker(q, newMailer(cfg, logger), logger.Named("mail"), rec)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("mail worker stopped", zap.Error(err))
			}
		}()
	}

	issuer := auth.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL)
	h := handler.New(handler.Deps{
		Accounts: account.NewService(db, issuer, otps, limiter, notify.NewNotifier(q), account.Options{
			BcryptCost: cfg.BcryptCost,
			OTPTTL:     cfg.OTPTTL,
		}),
		Students:   student.NewService(db, cfg.BcryptCost),
		Attendance: attendance.NewService(db, loc, attendance.WithRecorder(rec)),
		Issuer:     issuer,
		Metrics:    rec,
		Gatherer:   prometheus.DefaultGatherer,
		Checks:     checks,
		Log:        logger,

		ResetLimiter: resetLimiter,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.Logger(logger, "/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS(strings.Split(cfg.FrontendURL, ",")...))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.RateLimit(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)))
	r.Use(rec.GinMiddleware())
	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("storage", cfg.StorageBackend), zap.String("queue", cfg.QueueBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

func newMailer(cfg config.App, logger *zap.Logger) mailer.Mailer {
	if cfg.SendgridAPIKey == "" {
		logger.Info("SENDGRID_API_KEY not set, emails are logged only")
		return mailer.NewConsole(logger.Named("mail"))
	}
	return mailer.NewSendGrid(cfg.SendgridAPIKey, cfg.MailFromName, cfg.MailFromAddress)
}
