package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"resumeadvisor/internal/mailer"
	"resumeadvisor/internal/tasks"
)

// EmailTaskHandler 消费验证邮件任务并通过邮件服务投递。
type EmailTaskHandler struct {
	sender mailer.Sender
	logger *slog.Logger
}

// NewEmailTaskHandler 构造 EmailTaskHandler。
func NewEmailTaskHandler(sender mailer.Sender, logger *slog.Logger) *EmailTaskHandler {
	return &EmailTaskHandler{sender: sender, logger: logger}
}

// ProcessTask implements asynq.Handler. A send failure is returned so asynq
// applies its retry policy; the payload (not the mail body) is logged.
func (h *EmailTaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload tasks.VerificationEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads never become sendable; skip retries.
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	logger := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)

	if err := h.sender.SendVerification(payload.Email, payload.Token); err != nil {
		logger.Error("verification email failed", slog.Any("error", err))
		return fmt.Errorf("send verification: %w", err)
	}

	logger.Info("verification email sent")
	return nil
}
