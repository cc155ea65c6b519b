package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"jobportal/internal/config"
	"jobportal/internal/metrics"
	"jobportal/internal/notify"
	"jobportal/internal/tasks"
	"jobportal/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
	})

	mailer := notify.NewMailer(cfg.Mail, logger)
	notifyHandler := worker.NewNotifyTaskHandler(mailer, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeApplicationReceived, notifyHandler)

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(mux); err != nil {
		log.Fatalf("worker server stopped: %v", err)
	}
}
