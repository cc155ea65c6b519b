package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/auth"
	"jobportal/internal/database"
	"jobportal/internal/otp"
)

const resendCooldownKeyPrefix = "otp:resend:"

// HRAuthHandler 处理 HR 端注册、验证、登录与登出。
type HRAuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	redis       redis.UniversalClient
	dispatcher  OTPDispatcher
	logger      *slog.Logger
	otpTTL      time.Duration
	failWindow  time.Duration
	failLimit   int
	resendTTL   time.Duration
	resendLimit int
	now         func() time.Time
}

// NewHRAuthHandler 构造 HR 认证处理器。redisClient 可为 nil（测试场景）。
func NewHRAuthHandler(
	db *gorm.DB,
	authService *auth.AuthService,
	redisClient redis.UniversalClient,
	dispatcher OTPDispatcher,
	logger *slog.Logger,
	otpTTL, failWindow time.Duration,
	failLimit int,
	resendTTL time.Duration,
	resendLimit int,
) *HRAuthHandler {
	return &HRAuthHandler{
		db:          db,
		authService: authService,
		redis:       redisClient,
		dispatcher:  dispatcher,
		logger:      logger,
		otpTTL:      otpTTL,
		failWindow:  failWindow,
		failLimit:   failLimit,
		resendTTL:   resendTTL,
		resendLimit: resendLimit,
		now:         time.Now,
	}
}

type hrSignupRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Company  string `json:"company" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup 创建或覆盖一条未验证的 HR 注册记录并下发验证码。
func (h *HRAuthHandler) Signup(c *gin.Context) {
	var req hrSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	if len(req.Password) < 6 {
		BadRequest(c, "password must be at least 6 characters")
		return
	}
	email, ok := otp.CanonicalEmail(req.Email)
	if !ok {
		BadRequest(c, "please provide a valid gmail address")
		return
	}

	var account database.HRAccount
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err == nil {
		Conflict(c, "email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("hr signup account lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	code, err := otp.Generate()
	if err != nil {
		logger.Error("generate otp failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	expiry := otp.FormatExpiry(h.now().Add(h.otpTTL))

	conflict := false
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending database.HRPending
		err := tx.Where("email = ?", email).First(&pending).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			pending = database.HRPending{
				FullName:     req.FullName,
				Email:        &email,
				Company:      req.Company,
				PasswordHash: hashed,
				OTPCode:      code,
				OTPExpiry:    expiry,
			}
			return tx.Create(&pending).Error
		case err != nil:
			return err
		}

		if pending.Verified {
			conflict = true
			return nil
		}

		// 未验证的重复注册就地覆盖，不产生第二条待验证记录。
		pending.FullName = req.FullName
		pending.Company = req.Company
		pending.PasswordHash = hashed
		pending.OTPCode = code
		pending.OTPExpiry = expiry
		pending.Verified = false
		return tx.Save(&pending).Error
	})
	if err != nil {
		logger.Error("hr signup upsert failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if conflict {
		Conflict(c, "email already registered")
		return
	}

	// 待验证记录已落库，下发失败不回滚，客户端可通过重发补救。
	if err := h.dispatcher.SendOTP(ctx, email, "", code, database.UserTypeHR); err != nil {
		logger.Error("hr otp dispatch failed", slog.Any("error", err))
		Error(c, http.StatusInternalServerError, "unable to send otp, please try again later")
		return
	}

	logger.Info("hr signup otp sent", slog.String("email", email))
	c.JSON(http.StatusOK, gin.H{"message": "otp sent successfully, please check your email"})
}

type hrVerifyRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// VerifyOTP 校验验证码，成功后在同一事务内创建或更新持久账号并返回令牌。
func (h *HRAuthHandler) VerifyOTP(c *gin.Context) {
	var req hrVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	email, ok := otp.CanonicalEmail(req.Email)
	if !ok {
		BadRequest(c, "please provide a valid gmail address")
		return
	}

	var pending database.HRPending
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&pending).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "hr not found, please signup again")
			return
		}
		logger.Error("hr verify lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := otp.CheckCode(pending.OTPCode, req.OTP); err != nil {
		Unauthorized(c)
		return
	}
	if err := otp.CheckExpiry(pending.OTPExpiry, h.now()); err != nil {
		switch {
		case errors.Is(err, otp.ErrExpiredCode):
			BadRequest(c, "otp expired, please request a new one")
		case errors.Is(err, otp.ErrInvalidExpiry):
			BadRequest(c, "invalid otp expiry, please request a new otp")
		default:
			Internal(c, "internal error")
		}
		return
	}

	// 验证与持久账号写入同一事务提交，避免出现已验证但不可登录的中间态。
	var account database.HRAccount
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending.Verified = true
		pending.OTPCode = ""
		pending.OTPExpiry = ""
		if err := tx.Save(&pending).Error; err != nil {
			return err
		}

		var upsertErr error
		account, upsertErr = upsertHRAccount(tx, pending.FullName, email, pending.Company, pending.PasswordHash)
		return upsertErr
	})
	if err != nil {
		logger.Error("hr verify upsert failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	token, err := h.authService.GenerateToken(account.HRID, account.Email, database.UserTypeHR)
	if err != nil {
		logger.Error("sign token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("hr account verified", slog.String("hrid", account.HRID))
	c.JSON(http.StatusOK, gin.H{
		"message": "account verified and created successfully",
		"token":   token,
		"user": gin.H{
			"hrId":     account.HRID,
			"email":    account.Email,
			"fullName": account.FullName,
			"company":  account.Company,
			"role":     database.UserTypeHR,
		},
	})
}

// upsertHRAccount 幂等写入持久 HR 账号：存在则就地更新，插入撞唯一键则回读更新。
func upsertHRAccount(tx *gorm.DB, fullName, email, company, passwordHash string) (database.HRAccount, error) {
	var account database.HRAccount
	err := tx.Where("email = ?", email).First(&account).Error
	if err == nil {
		account.FullName = fullName
		account.Company = company
		account.PasswordHash = passwordHash
		return account, tx.Save(&account).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return account, err
	}

	hrid, err := nextHRID(tx)
	if err != nil {
		return account, err
	}
	account = database.HRAccount{
		HRID:         hrid,
		FullName:     fullName,
		Email:        email,
		Company:      company,
		PasswordHash: passwordHash,
	}
	if createErr := tx.Create(&account).Error; createErr != nil {
		// 并发注册撞唯一键时转入更新路径而不是报错。
		var existing database.HRAccount
		if readErr := tx.Where("email = ?", email).First(&existing).Error; readErr != nil {
			return account, createErr
		}
		existing.FullName = fullName
		existing.Company = company
		existing.PasswordHash = passwordHash
		return existing, tx.Save(&existing).Error
	}
	return account, nil
}

type hrResendRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResendOTP 重发验证码，受 Redis 计数的冷却窗口限制。
func (h *HRAuthHandler) ResendOTP(c *gin.Context) {
	var req hrResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	email, ok := otp.CanonicalEmail(req.Email)
	if !ok {
		BadRequest(c, "please provide a valid gmail address")
		return
	}

	var account database.HRAccount
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err == nil {
		Conflict(c, "email already registered, please login")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("hr resend account lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var pending database.HRPending
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&pending).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "no signup found, please signup first")
			return
		}
		logger.Error("hr resend lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if pending.Verified {
		Conflict(c, "account already verified, please login")
		return
	}

	if h.redis != nil && h.resendLimit > 0 {
		count, err := incrWithTTL(ctx, h.redis, resendCooldownKeyPrefix+database.UserTypeHR+":"+email, h.resendTTL)
		if err != nil {
			logger.Error("resend counter failed", slog.Any("error", err))
		} else if count > int64(h.resendLimit) {
			TooManyRequests(c, "too many otp requests, please try again later")
			return
		}
	}

	code, err := otp.Generate()
	if err != nil {
		logger.Error("generate otp failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	pending.OTPCode = code
	pending.OTPExpiry = otp.FormatExpiry(h.now().Add(h.otpTTL))
	if err := h.db.WithContext(ctx).Save(&pending).Error; err != nil {
		logger.Error("hr resend save failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.dispatcher.SendOTP(ctx, email, "", code, database.UserTypeHR); err != nil {
		logger.Error("hr otp dispatch failed", slog.Any("error", err))
		Error(c, http.StatusInternalServerError, "unable to send otp, please try again later")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "otp resent successfully, please check your email"})
}

type hrLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 校验口令并返回令牌，滑动窗口内失败过多直接拒绝。
func (h *HRAuthHandler) Login(c *gin.Context) {
	var req hrLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	failed, err := recentFailedAttempts(ctx, h.db, email, database.UserTypeHR, h.failWindow, h.now())
	if err != nil {
		logger.Error("login attempt count failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if failed >= int64(h.failLimit) {
		recordLoginAttempt(ctx, h.db, email, database.UserTypeHR, database.LoginStatusFailed, "too many failed attempts", c)
		TooManyRequests(c, "too many failed login attempts, please try again later")
		return
	}

	var account database.HRAccount
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			var pending database.HRPending
			if pErr := h.db.WithContext(ctx).Where("email = ?", email).First(&pending).Error; pErr == nil && !pending.Verified {
				recordLoginAttempt(ctx, h.db, email, database.UserTypeHR, database.LoginStatusFailed, "otp not verified", c)
				Forbidden(c, "please verify your otp to login")
				return
			}
			recordLoginAttempt(ctx, h.db, email, database.UserTypeHR, database.LoginStatusFailed, "user not found", c)
			Unauthorized(c)
			return
		}
		logger.Error("hr login lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !auth.CheckPasswordHash(req.Password, account.PasswordHash) {
		recordLoginAttempt(ctx, h.db, email, database.UserTypeHR, database.LoginStatusFailed, "invalid password", c)
		Unauthorized(c)
		return
	}

	token, err := h.authService.GenerateToken(account.HRID, account.Email, database.UserTypeHR)
	if err != nil {
		logger.Error("sign token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	recordLoginAttempt(ctx, h.db, email, database.UserTypeHR, database.LoginStatusSuccess, "", c)
	logger.Info("hr login", slog.String("hrid", account.HRID))
	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"hrId":     account.HRID,
			"email":    account.Email,
			"fullName": account.FullName,
			"company":  account.Company,
			"role":     database.UserTypeHR,
		},
	})
}

// Logout 将当前令牌拉黑至其自然过期。
func (h *HRAuthHandler) Logout(c *gin.Context) {
	logout(c, h.redis, h.authService.TokenTTL())
}

// logout 是 HR 与候选人共用的登出实现。
func logout(c *gin.Context, redisClient redis.UniversalClient, ttl time.Duration) {
	raw := middleware.BearerToken(c)
	if raw != "" && redisClient != nil {
		if err := redisClient.Set(c.Request.Context(), middleware.BlacklistKey(raw), "1", ttl).Err(); err != nil {
			middleware.LoggerFromContext(c).Error("token blacklist failed", slog.Any("error", err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}
