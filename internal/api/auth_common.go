package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobportal/internal/database"
)

// OTPDispatcher 抽象验证码下发，便于测试注入假通道。
type OTPDispatcher interface {
	SendOTP(ctx context.Context, email, phone, code, userType string) error
}

// recordLoginAttempt 追加一条登录流水，失败不影响主流程。
func recordLoginAttempt(ctx context.Context, db *gorm.DB, identifier, userType, status, reason string, c *gin.Context) {
	attempt := database.LoginAttempt{
		Identifier:    identifier,
		UserType:      userType,
		Status:        status,
		FailureReason: reason,
	}
	if c != nil {
		attempt.IPAddress = c.ClientIP()
		attempt.UserAgent = c.Request.UserAgent()
	}
	_ = db.WithContext(ctx).Create(&attempt).Error
}

// recentFailedAttempts 统计滑动窗口内某标识的失败登录次数。
func recentFailedAttempts(ctx context.Context, db *gorm.DB, identifier, userType string, window time.Duration, now time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&database.LoginAttempt{}).
		Where("identifier = ? AND user_type = ? AND status = ? AND created_at > ?",
			identifier, userType, database.LoginStatusFailed, now.Add(-window)).
		Count(&count).Error
	return count, err
}

// nextSequenceID 生成 prefix+零填充序号 形式的业务编号（如 HRID001）。
// LIKE 会把互为前缀的编号也捞出来（D 匹配 DA001），且序号超过填充宽度后
// 字典序失效（HRID1000 排在 HRID999 之前），所以不能只取字典序最大的一行：
// 取全部匹配行，只认纯数字后缀，按数值求最大再递增。
func nextSequenceID(tx *gorm.DB, model any, column, prefix string, width int) (string, error) {
	var ids []string
	if err := tx.Model(model).
		Where(column+" LIKE ?", prefix+"%").
		Pluck(column, &ids).Error; err != nil {
		return "", fmt.Errorf("lookup last %s: %w", column, err)
	}

	next := 1
	for _, id := range ids {
		suffix := strings.TrimPrefix(id, prefix)
		if !allDigits(suffix) {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n >= next {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, width, next), nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func nextHRID(tx *gorm.DB) (string, error) {
	return nextSequenceID(tx, &database.HRAccount{}, "hrid", "HRID", 3)
}

func nextCID(tx *gorm.DB) (string, error) {
	return nextSequenceID(tx, &database.CandidateAccount{}, "cid", "CID", 3)
}
