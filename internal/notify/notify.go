// Package notify 负责验证码与业务通知的外发（邮件与短信）。
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrDeliveryFailed 表示验证码已持久化但外发通道失败。
// 调用方据此返回投递失败而不回滚待验证记录。
var ErrDeliveryFailed = errors.New("otp delivery failed")

// EmailSender 抽象邮件通道，便于测试替换。
type EmailSender interface {
	SendOTP(ctx context.Context, to, code, userType string) error
	SendApplicationReceived(ctx context.Context, to, candidateName, jobTitle string) error
}

// SMSSender 抽象短信通道。
type SMSSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// Dispatcher 按联系方式选择通道下发验证码：邮箱优先，否则走短信。
type Dispatcher struct {
	email  EmailSender
	sms    SMSSender
	logger *slog.Logger
}

// NewDispatcher 构造下发器。
func NewDispatcher(email EmailSender, sms SMSSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{email: email, sms: sms, logger: logger}
}

// SendOTP 把验证码发到 email 或 phone。
// 邮箱优先；邮件失败且手机号可用时回退短信。所有通道都失败返回 ErrDeliveryFailed。
func (d *Dispatcher) SendOTP(ctx context.Context, email, phone, code, userType string) error {
	if email == "" && phone == "" {
		return errors.New("no recipient for otp")
	}

	var emailErr error
	if email != "" {
		emailErr = d.email.SendOTP(ctx, email, code, userType)
		if emailErr == nil {
			return nil
		}
		d.logger.Error("send otp email failed", "recipient", email, "error", emailErr)
	}

	if phone != "" {
		if smsErr := d.sms.SendOTP(ctx, phone, code); smsErr != nil {
			d.logger.Error("send otp sms failed", "phone", phone, "error", smsErr)
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, smsErr)
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrDeliveryFailed, emailErr)
}
