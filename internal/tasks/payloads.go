package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeVerificationEmail = "email:verification"
)

// VerificationEmailPayload 描述发送验证邮件所需的最小信息。
type VerificationEmailPayload struct {
	UserID        uint   `json:"user_id"`
	Email         string `json:"email"`
	Token         string `json:"token"`
	CorrelationID string `json:"correlation_id"`
}

// NewVerificationEmailTask 构造一个新的验证邮件任务。
func NewVerificationEmailTask(userID uint, email, token, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(VerificationEmailPayload{
		UserID:        userID,
		Email:         email,
		Token:         token,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVerificationEmail, payload), nil
}
