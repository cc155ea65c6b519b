package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/database"
	"jobportal/internal/otp"
)

// 登录流水查询的条数限制。
const (
	historyDefaultLimit = 20
	historyMaxLimit     = 100
)

// SessionHandler 暴露当前账号的登录流水查询。
// 会话的注销走 redis 令牌黑名单，这里只提供审计视角的只读历史。
type SessionHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSessionHandler 构造登录历史处理器。
func NewSessionHandler(db *gorm.DB, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{db: db, logger: logger}
}

// History 返回当前账号最近的登录记录，按时间倒序，支持 limit 参数。
func (h *SessionHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	role := middleware.UserRole(c)

	limit := historyDefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
		if limit > historyMaxLimit {
			limit = historyMaxLimit
		}
	}

	identifiers := h.identifiers(ctx, c)
	if len(identifiers) == 0 {
		c.JSON(http.StatusOK, []gin.H{})
		return
	}

	var attempts []database.LoginAttempt
	if err := h.db.WithContext(ctx).
		Where("identifier IN ? AND user_type = ?", identifiers, role).
		Order("created_at DESC").
		Limit(limit).
		Find(&attempts).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list login history failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]gin.H, 0, len(attempts))
	for _, attempt := range attempts {
		entry := gin.H{
			"attemptedAt": attempt.CreatedAt,
			"identifier":  attempt.Identifier,
			"status":      attempt.Status,
			"ipAddress":   attempt.IPAddress,
			"userAgent":   attempt.UserAgent,
		}
		if attempt.FailureReason != "" {
			entry["failureReason"] = attempt.FailureReason
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, out)
}

// identifiers 汇总会出现在该账号登录流水中的身份标识。
// 登录流水按登录时提交的邮箱或手机号落库，所以除令牌邮箱外，
// 候选人还要补上合成邮箱背后的手机号以及待验证记录上的另一个联系方式。
func (h *SessionHandler) identifiers(ctx context.Context, c *gin.Context) []string {
	var ids []string
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			ids = append(ids, s)
		}
	}

	email := strings.ToLower(strings.TrimSpace(middleware.UserEmail(c)))
	add(email)

	if middleware.UserRole(c) != database.UserTypeCandidate {
		return ids
	}

	phone, _ := otp.PlaceholderPhone(email)
	add(phone)

	if pending, err := findCandidatePending(h.db.WithContext(ctx), email, phone); err == nil && pending != nil {
		add(pendingEmail(pending))
		add(pendingPhone(pending))
	}
	return ids
}
