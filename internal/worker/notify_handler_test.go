package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"

	"jobportal/internal/tasks"
)

type fakeMailer struct {
	sentTo   []string
	sendErr  error
	lastName string
	lastJob  string
}

func (f *fakeMailer) SendOTP(_ context.Context, _, _, _ string) error { return nil }

func (f *fakeMailer) SendApplicationReceived(_ context.Context, to, candidateName, jobTitle string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = append(f.sentTo, to)
	f.lastName = candidateName
	f.lastJob = jobTitle
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessTaskSendsConfirmation(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewNotifyTaskHandler(mailer, discardLogger())

	task, err := tasks.NewApplicationReceivedTask("ravi@gmail.com", "Ravi Kumar", "Data Analyst")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(mailer.sentTo) != 1 || mailer.sentTo[0] != "ravi@gmail.com" {
		t.Fatalf("sent to %v", mailer.sentTo)
	}
	if mailer.lastName != "Ravi Kumar" || mailer.lastJob != "Data Analyst" {
		t.Fatalf("unexpected mail args %q %q", mailer.lastName, mailer.lastJob)
	}
}

func TestProcessTaskDropsCorruptPayload(t *testing.T) {
	mailer := &fakeMailer{}
	h := NewNotifyTaskHandler(mailer, discardLogger())

	task := asynq.NewTask(tasks.TypeApplicationReceived, []byte("{not json"))
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("corrupt payload should be dropped, got %v", err)
	}
	if len(mailer.sentTo) != 0 {
		t.Fatalf("no mail expected, got %v", mailer.sentTo)
	}
}

func TestProcessTaskReturnsSendErrorForRetry(t *testing.T) {
	mailer := &fakeMailer{sendErr: errors.New("smtp down")}
	h := NewNotifyTaskHandler(mailer, discardLogger())

	task, err := tasks.NewApplicationReceivedTask("ravi@gmail.com", "Ravi", "Analyst")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected error for queue retry")
	}
}
