package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"jobportal/internal/config"
)

// Mailer 通过 SMTP 发送邮件。
// 凭据缺失或显式开启 suppress 时进入开发模式：邮件内容只记日志，不真正发送。
type Mailer struct {
	cfg    config.MailConfig
	dialer *gomail.Dialer
	logger *slog.Logger
}

// NewMailer 构造邮件发送器。
func NewMailer(cfg config.MailConfig, logger *slog.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: logger}
	if !m.suppressed() {
		m.dialer = gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)
	}
	return m
}

func (m *Mailer) suppressed() bool {
	return m.cfg.SuppressSend || m.cfg.Username == "" || m.cfg.Password == ""
}

// SendOTP 发送验证码邮件。
func (m *Mailer) SendOTP(ctx context.Context, to, code, userType string) error {
	greeting := "Dear Candidate,"
	if strings.EqualFold(userType, "hr") {
		greeting = "Dear HR,"
	}
	body := fmt.Sprintf(
		"%s\n\nYour One-Time Password (OTP) is: %s\nThis code is valid for 5 minutes.\n\n"+
			"If you did not request this OTP, please ignore this email.\n\nRegards,\nJob Portal Team",
		greeting, code,
	)
	if m.suppressed() {
		m.logger.Info("dev email otp (not sent)", "recipient", to, "code", code)
		return nil
	}
	return m.send(ctx, to, "Your Job Portal OTP", body)
}

// SendApplicationReceived 发送投递确认邮件（异步任务调用）。
func (m *Mailer) SendApplicationReceived(ctx context.Context, to, candidateName, jobTitle string) error {
	body := fmt.Sprintf(
		"Dear %s,\n\nWe received your application for %s.\n"+
			"The hiring team will review it and reach out if there is a fit.\n\nRegards,\nJob Portal Team",
		candidateName, jobTitle,
	)
	if m.suppressed() {
		m.logger.Info("dev application email (not sent)", "recipient", to, "job_title", jobTitle)
		return nil
	}
	return m.send(ctx, to, "Application received: "+jobTitle, body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
