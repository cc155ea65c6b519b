package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobportal/internal/config"
)

// SMSClient 通过 Fast2SMS 风格的 HTTP 接口发送短信验证码。
// 未配置 API key 时进入模拟模式，只记日志。
type SMSClient struct {
	cfg    config.SMSConfig
	client *http.Client
	logger *slog.Logger
}

// NewSMSClient 构造短信客户端。
func NewSMSClient(cfg config.SMSConfig, logger *slog.Logger) *SMSClient {
	return &SMSClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// SendOTP 发送验证码短信。
func (c *SMSClient) SendOTP(ctx context.Context, phone, code string) error {
	if c.cfg.APIKey == "" {
		c.logger.Info("dev sms otp (not sent)", "phone", phone, "code", code)
		return nil
	}

	form := url.Values{}
	form.Set("route", "otp")
	form.Set("variables_values", code)
	form.Set("numbers", phone)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Return bool `json:"return"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode sms response: %w", err)
	}
	if !result.Return {
		return fmt.Errorf("sms gateway rejected message for %s", phone)
	}
	return nil
}
