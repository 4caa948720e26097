package main

import (
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"resumeadvisor/internal/config"
	"resumeadvisor/internal/mailer"
	"resumeadvisor/internal/metrics"
	"resumeadvisor/internal/tasks"
	"resumeadvisor/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	redisAddr := cfg.Redis.Addr()
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: 10,
	})

	emailHandler := worker.NewEmailTaskHandler(mailer.NewSMTPMailer(cfg.SMTP), logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeVerificationEmail, emailHandler)

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
