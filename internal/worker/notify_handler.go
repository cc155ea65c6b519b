package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"jobportal/internal/notify"
	"jobportal/internal/tasks"
)

// NotifyTaskHandler 负责消费投递确认邮件任务。
type NotifyTaskHandler struct {
	mailer notify.EmailSender
	logger *slog.Logger
}

// NewNotifyTaskHandler 创建任务处理器。
func NewNotifyTaskHandler(mailer notify.EmailSender, logger *slog.Logger) *NotifyTaskHandler {
	return &NotifyTaskHandler{mailer: mailer, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
// 载荷损坏的任务直接丢弃；发信失败则返回错误交给队列重试。
func (h *NotifyTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.ApplicationReceivedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return nil
	}

	log := h.logger.With(
		slog.String("email", payload.Email),
		slog.String("job_title", payload.JobTitle),
	)

	if err := h.mailer.SendApplicationReceived(ctx, payload.Email, payload.CandidateName, payload.JobTitle); err != nil {
		log.Error("send application confirmation failed", slog.Any("error", err))
		return err
	}
	log.Info("application confirmation sent")
	return nil
}
