// Package otp 提供一次性验证码的生成、身份标识校验与存储时间戳归一化。
// 注册/验证/重发流程本身在 API 层编排，这里只放与存储和传输无关的纯逻辑。
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// 验证码为 6 位十进制数字，始终左侧补零。
const CodeLength = 6

// OTP 相关的哨兵错误，由 API 层映射为对外响应。
var (
	ErrInvalidCode   = errors.New("invalid otp code")
	ErrExpiredCode   = errors.New("otp code expired")
	ErrInvalidExpiry = errors.New("invalid otp expiry")
)

var (
	gmailRegex  = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@gmail\.com$`)
	nonDigitsRe = regexp.MustCompile(`\D`)
	indianPhone = regexp.MustCompile(`^[6-9]\d{9}$`)
)

// Generate 生成一个 6 位数字验证码（均匀随机，零填充）。
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// IsValidEmail 校验邮箱是否为可接受的 Gmail 地址（大小写不敏感）。
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	return gmailRegex.MatchString(strings.ToLower(email))
}

// CanonicalEmail 去除首尾空白并转小写，返回归一化邮箱与是否合法。
func CanonicalEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !IsValidEmail(email) {
		return "", false
	}
	return email, true
}

// NormalizePhone 去掉所有非数字字符，并剥离国家码 91 与长途前缀 0。
// 返回空串表示没有可用数字。
func NormalizePhone(phone string) string {
	digits := nonDigitsRe.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "91") && len(digits) == 12 {
		digits = digits[2:]
	}
	if strings.HasPrefix(digits, "0") && len(digits) == 11 {
		digits = digits[1:]
	}
	return digits
}

// IsValidPhone 校验手机号归一化后是否为首位 6-9 的 10 位印度号码。
func IsValidPhone(phone string) bool {
	return indianPhone.MatchString(NormalizePhone(phone))
}

// CheckCode 按去除首尾空白后的字符串比较校验码，容忍数值/字符串表示差异。
func CheckCode(stored, supplied string) error {
	stored = strings.TrimSpace(stored)
	supplied = strings.TrimSpace(supplied)
	if stored == "" || supplied == "" || stored != supplied {
		return ErrInvalidCode
	}
	return nil
}

// 存储层可能返回的时间戳格式。SQL Server 风格的微秒后缀
// （如 "2025-11-21 12:17:54.6400000"）会先被截断再解析。
var expiryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseExpiry 将存储层的过期时间归一化为 UTC time.Time。
// 这是持久化边界上唯一的多格式解析点；解析失败返回 ErrInvalidExpiry。
func ParseExpiry(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidExpiry
	}

	candidates := []string{s}
	// 带小数秒但不是 RFC3339 的形式，去掉小数部分与尾部 Z 再试一次。
	if i := strings.IndexByte(s, '.'); i > 0 {
		candidates = append(candidates, strings.TrimSuffix(s[:i], "Z"))
	}
	candidates = append(candidates, strings.TrimSuffix(s, "Z"))

	for _, c := range candidates {
		for _, layout := range expiryLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, raw)
}

// FormatExpiry 将过期时间序列化为写入存储的标准形式。
func FormatExpiry(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CheckExpiry 解析存储的过期时间并与 now 比较。
// 已过期返回 ErrExpiredCode，无法解析返回 ErrInvalidExpiry。
func CheckExpiry(raw string, now time.Time) error {
	expiry, err := ParseExpiry(raw)
	if err != nil {
		return err
	}
	if !now.Before(expiry) {
		return ErrExpiredCode
	}
	return nil
}

// PlaceholderEmail 为仅手机号注册的候选人合成确定性邮箱，
// 保证下游唯一邮箱约束不被破坏。
func PlaceholderEmail(phone string) string {
	return fmt.Sprintf("phone_%s@jobportal.local", NormalizePhone(phone))
}

// PlaceholderPhone 从合成邮箱中还原手机号，非合成邮箱返回 false。
func PlaceholderPhone(email string) (string, bool) {
	rest, ok := strings.CutPrefix(email, "phone_")
	if !ok {
		return "", false
	}
	phone, ok := strings.CutSuffix(rest, "@jobportal.local")
	if !ok || !indianPhone.MatchString(phone) {
		return "", false
	}
	return phone, true
}

// ResolveEmail 返回真实邮箱，缺失时回落到手机号合成邮箱。
func ResolveEmail(email, phone string) string {
	if email != "" {
		return email
	}
	if phone != "" {
		return PlaceholderEmail(phone)
	}
	return ""
}
