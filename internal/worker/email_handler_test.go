package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"

	"resumeadvisor/internal/tasks"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) SendVerification(email, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessTaskSendsVerification(t *testing.T) {
	sender := &fakeSender{}
	handler := NewEmailTaskHandler(sender, discardLogger())

	task, err := tasks.NewVerificationEmailTask(1, "ada@example.com", "tok", "corr")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "ada@example.com" {
		t.Errorf("sent = %v", sender.sent)
	}
}

func TestProcessTaskReturnsSendFailureForRetry(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	handler := NewEmailTaskHandler(sender, discardLogger())

	task, err := tasks.NewVerificationEmailTask(1, "ada@example.com", "tok", "corr")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	err = handler.ProcessTask(context.Background(), task)
	if err == nil {
		t.Fatal("send failure swallowed")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Error("send failure marked unretryable")
	}
}

func TestProcessTaskSkipsRetryOnMalformedPayload(t *testing.T) {
	handler := NewEmailTaskHandler(&fakeSender{}, discardLogger())

	task := asynq.NewTask(tasks.TypeVerificationEmail, []byte("{not json"))
	err := handler.ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}
