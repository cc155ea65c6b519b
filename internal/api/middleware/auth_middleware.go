package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"jobportal/internal/auth"
)

const (
	userIDKey    = "userID"
	userEmailKey = "userEmail"
	userRoleKey  = "userRole"

	// 登出后的令牌写入该前缀的 Redis 键，TTL 与令牌剩余有效期一致。
	blacklistPrefix = "jwt:blacklist:"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将用户身份注入上下文。
// redisClient 可为 nil（测试场景），此时跳过登出黑名单检查。
func AuthMiddleware(authService *auth.AuthService, redisClient redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		if redisClient != nil {
			exists, err := redisClient.Exists(c.Request.Context(), blacklistPrefix+rawToken).Result()
			if err == nil && exists > 0 {
				abortUnauthorized(c)
				return
			}
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userEmailKey, claims.Email)
		c.Set(userRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole 限制路由只允许指定角色访问，必须挂在 AuthMiddleware 之后。
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(userRoleKey) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// UserID 返回上下文中的用户业务编号。
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// UserEmail 返回上下文中的用户邮箱。
func UserEmail(c *gin.Context) string {
	return c.GetString(userEmailKey)
}

// UserRole 返回上下文中的用户角色。
func UserRole(c *gin.Context) string {
	return c.GetString(userRoleKey)
}

// BlacklistKey 返回登出令牌对应的 Redis 键。
func BlacklistKey(rawToken string) string {
	return blacklistPrefix + rawToken
}

// BearerToken 从请求头提取原始令牌，供登出处理器拉黑使用。
func BearerToken(c *gin.Context) string {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
