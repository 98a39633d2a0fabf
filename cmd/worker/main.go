package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"rollbook/internal/config"
	"rollbook/internal/logging"
	"rollbook/internal/mailer"
	"rollbook/internal/metrics"
	"rollbook/internal/notify"
	"rollbook/internal/queue"
	"rollbook/internal/store"
)

// Worker consumes email jobs from the Redis queue and delivers them.
func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Production())
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.QueueBackend == "memory" {
		logger.Fatal("QUEUE_BACKEND=memory delivers mail inside the api process, nothing to do")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	var m mailer.Mailer
	if cfg.SendgridAPIKey == "" {
		logger.Info("SENDGRID_API_KEY not set, emails are logged only")
		m = mailer.NewConsole(logger.Named("mail"))
	} else {
		m = mailer.NewSendGrid(cfg.SendgridAPIKey, cfg.MailFromName, cfg.MailFromAddress)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	srv := newMetricsServer(":"+cfg.MetricsPort, reg)
	go func() {
		logger.Info("serving metrics", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	w := notify.NewWorker(q, m, logger, rec)
	if err := w.Run(ctx); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}
