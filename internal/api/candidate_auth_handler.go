package api

import (
	"context"
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

// CandidateAuthHandler 处理候选人端注册、验证、登录与登出。
// 候选人可用 Gmail 邮箱或印度手机号二选一注册。
type CandidateAuthHandler struct {
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

// NewCandidateAuthHandler 构造候选人认证处理器。redisClient 可为 nil（测试场景）。
func NewCandidateAuthHandler(
	db *gorm.DB,
	authService *auth.AuthService,
	redisClient redis.UniversalClient,
	dispatcher OTPDispatcher,
	logger *slog.Logger,
	otpTTL, failWindow time.Duration,
	failLimit int,
	resendTTL time.Duration,
	resendLimit int,
) *CandidateAuthHandler {
	return &CandidateAuthHandler{
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

// findCandidatePending 按邮箱或手机号做逻辑 OR 查找待验证记录。
func findCandidatePending(tx *gorm.DB, email, phone string) (*database.CandidatePending, error) {
	query := tx
	switch {
	case email != "" && phone != "":
		query = query.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		query = query.Where("email = ?", email)
	case phone != "":
		query = query.Where("phone = ?", phone)
	default:
		return nil, gorm.ErrRecordNotFound
	}

	var pending database.CandidatePending
	if err := query.First(&pending).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}

type candidateSignupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
}

// Signup 创建或覆盖一条未验证的候选人注册记录并下发验证码。
func (h *CandidateAuthHandler) Signup(c *gin.Context) {
	var req candidateSignupRequest
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

	email, emailValid := otp.CanonicalEmail(req.Email)
	phone := otp.NormalizePhone(req.Phone)
	phoneValid := otp.IsValidPhone(phone)
	if !emailValid && !phoneValid {
		BadRequest(c, "provide a valid gmail address or 10-digit indian phone number")
		return
	}
	if !emailValid {
		email = ""
	}
	if !phoneValid {
		phone = ""
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

	var conflictMsg string
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var byEmail, byPhone *database.CandidatePending
		if email != "" {
			var p database.CandidatePending
			if err := tx.Where("email = ?", email).First(&p).Error; err == nil {
				byEmail = &p
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if phone != "" {
			var p database.CandidatePending
			if err := tx.Where("phone = ?", phone).First(&p).Error; err == nil {
				byPhone = &p
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if byEmail != nil && byPhone != nil && byEmail.ID != byPhone.ID {
			conflictMsg = "email and phone belong to different accounts"
			return nil
		}

		pending := byEmail
		if pending == nil {
			pending = byPhone
		}
		if pending != nil && pending.Verified {
			conflictMsg = "account already exists, please login"
			return nil
		}

		if pending == nil {
			row := database.CandidatePending{
				Name:         req.Name,
				PasswordHash: hashed,
				OTPCode:      code,
				OTPExpiry:    expiry,
			}
			if email != "" {
				row.Email = &email
			}
			if phone != "" {
				row.Phone = &phone
			}
			return tx.Create(&row).Error
		}

		// 未验证的重复注册就地覆盖，已填过的联系方式不清空。
		pending.Name = req.Name
		if email != "" {
			pending.Email = &email
		}
		if phone != "" {
			pending.Phone = &phone
		}
		pending.PasswordHash = hashed
		pending.OTPCode = code
		pending.OTPExpiry = expiry
		pending.Verified = false
		return tx.Save(pending).Error
	})
	if err != nil {
		logger.Error("candidate signup upsert failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if conflictMsg != "" {
		if conflictMsg == "account already exists, please login" {
			Conflict(c, conflictMsg)
		} else {
			BadRequest(c, conflictMsg)
		}
		return
	}

	// 待验证记录已落库，下发失败不回滚，客户端可通过重发补救。
	if err := h.dispatcher.SendOTP(ctx, email, phone, code, database.UserTypeCandidate); err != nil {
		logger.Error("candidate otp dispatch failed", slog.Any("error", err))
		Error(c, http.StatusInternalServerError, "unable to send otp, please try again later")
		return
	}

	logger.Info("candidate signup otp sent", slog.String("email", email), slog.String("phone", phone))
	c.JSON(http.StatusOK, gin.H{"message": "otp sent successfully"})
}

type candidateVerifyRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	OTP   string `json:"otp" binding:"required"`
}

// VerifyOTP 校验验证码，成功后在同一事务内落地持久账号并返回候选人编号。
func (h *CandidateAuthHandler) VerifyOTP(c *gin.Context) {
	var req candidateVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := otp.NormalizePhone(req.Phone)
	if email == "" && phone == "" {
		BadRequest(c, "email or phone is required")
		return
	}

	pending, err := findCandidatePending(h.db.WithContext(ctx), email, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "candidate not found, please signup again")
			return
		}
		logger.Error("candidate verify lookup failed", slog.Any("error", err))
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
	var account database.CandidateAccount
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending.Verified = true
		pending.OTPCode = ""
		pending.OTPExpiry = ""
		if err := tx.Save(pending).Error; err != nil {
			return err
		}

		var upsertErr error
		account, upsertErr = upsertCandidateAccount(tx, pending.Name, pendingEmail(pending), pendingPhone(pending), pending.PasswordHash)
		return upsertErr
	})
	if err != nil {
		logger.Error("candidate verify upsert failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("candidate account verified", slog.String("cid", account.CID))
	c.JSON(http.StatusOK, gin.H{
		"message": "otp verified successfully, account created",
		"cid":     account.CID,
	})
}

func pendingEmail(p *database.CandidatePending) string {
	if p.Email != nil {
		return *p.Email
	}
	return ""
}

func pendingPhone(p *database.CandidatePending) string {
	if p.Phone != nil {
		return *p.Phone
	}
	return ""
}

// upsertCandidateAccount 幂等写入持久候选人账号。
// 仅手机号注册时用合成邮箱作键；插入撞唯一键则回读更新。
func upsertCandidateAccount(tx *gorm.DB, name, email, phone, passwordHash string) (database.CandidateAccount, error) {
	var account database.CandidateAccount
	targetEmail := otp.ResolveEmail(email, phone)
	if targetEmail == "" {
		return account, errors.New("no contact to key durable account")
	}

	err := tx.Where("email = ?", targetEmail).First(&account).Error
	if err == nil {
		account.Name = name
		account.PasswordHash = passwordHash
		return account, tx.Save(&account).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return account, err
	}

	cid, err := nextCID(tx)
	if err != nil {
		return account, err
	}
	account = database.CandidateAccount{
		CID:          cid,
		Name:         name,
		Email:        targetEmail,
		PasswordHash: passwordHash,
	}
	if createErr := tx.Create(&account).Error; createErr != nil {
		// 并发注册撞唯一键时转入更新路径而不是报错。
		var existing database.CandidateAccount
		if readErr := tx.Where("email = ?", targetEmail).First(&existing).Error; readErr != nil {
			return account, createErr
		}
		existing.Name = name
		existing.PasswordHash = passwordHash
		return existing, tx.Save(&existing).Error
	}
	return account, nil
}

type candidateResendRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ResendOTP 重发验证码，受 Redis 计数的冷却窗口限制。
func (h *CandidateAuthHandler) ResendOTP(c *gin.Context) {
	var req candidateResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	email, emailValid := otp.CanonicalEmail(req.Email)
	phone := otp.NormalizePhone(req.Phone)
	phoneValid := otp.IsValidPhone(phone)
	if !emailValid && !phoneValid {
		BadRequest(c, "provide a valid gmail address or 10-digit indian phone number")
		return
	}
	if !emailValid {
		email = ""
	}
	if !phoneValid {
		phone = ""
	}

	pending, err := findCandidatePending(h.db.WithContext(ctx), email, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "no signup found, please signup first")
			return
		}
		logger.Error("candidate resend lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if pending.Verified {
		Conflict(c, "account already verified, please login")
		return
	}

	identifier := otp.ResolveEmail(email, phone)
	if h.redis != nil && h.resendLimit > 0 {
		count, err := incrWithTTL(ctx, h.redis, resendCooldownKeyPrefix+database.UserTypeCandidate+":"+identifier, h.resendTTL)
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
	if err := h.db.WithContext(ctx).Save(pending).Error; err != nil {
		logger.Error("candidate resend save failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.dispatcher.SendOTP(ctx, pendingEmail(pending), pendingPhone(pending), code, database.UserTypeCandidate); err != nil {
		logger.Error("candidate otp dispatch failed", slog.Any("error", err))
		Error(c, http.StatusInternalServerError, "unable to send otp, please try again later")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "otp resent successfully"})
}

type candidateLoginRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required"`
}

// Login 校验口令并返回令牌与档案摘要，滑动窗口内失败过多直接拒绝。
// 老数据只存在于持久账号表时会补建一条已验证的待验证影子记录。
func (h *CandidateAuthHandler) Login(c *gin.Context) {
	var req candidateLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := otp.NormalizePhone(req.Phone)
	identifier := email
	if identifier == "" {
		identifier = phone
	}
	if identifier == "" {
		BadRequest(c, "email or phone is required")
		return
	}

	failed, err := recentFailedAttempts(ctx, h.db, identifier, database.UserTypeCandidate, h.failWindow, h.now())
	if err != nil {
		logger.Error("login attempt count failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if failed >= int64(h.failLimit) {
		recordLoginAttempt(ctx, h.db, identifier, database.UserTypeCandidate, database.LoginStatusFailed, "too many failed attempts", c)
		TooManyRequests(c, "too many failed login attempts, please try again later")
		return
	}

	pending, err := findCandidatePending(h.db.WithContext(ctx), email, phone)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("candidate login lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if pending == nil && email != "" {
		pending, err = h.bootstrapLegacyCandidate(ctx, email)
		if err != nil {
			logger.Error("legacy candidate bootstrap failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}
	if pending == nil {
		recordLoginAttempt(ctx, h.db, identifier, database.UserTypeCandidate, database.LoginStatusFailed, "user not found", c)
		Unauthorized(c)
		return
	}
	if !pending.Verified {
		recordLoginAttempt(ctx, h.db, identifier, database.UserTypeCandidate, database.LoginStatusFailed, "otp not verified", c)
		Forbidden(c, "please verify your otp to login")
		return
	}

	if pending.PasswordHash == "" || !auth.CheckPasswordHash(req.Password, pending.PasswordHash) {
		recordLoginAttempt(ctx, h.db, identifier, database.UserTypeCandidate, database.LoginStatusFailed, "invalid password", c)
		Unauthorized(c)
		return
	}

	// 覆盖此流程上线前只有持久账号的老记录。
	var account database.CandidateAccount
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var upsertErr error
		account, upsertErr = upsertCandidateAccount(tx, pending.Name, pendingEmail(pending), pendingPhone(pending), pending.PasswordHash)
		return upsertErr
	})
	if err != nil {
		logger.Error("candidate login upsert failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	token, err := h.authService.GenerateToken(account.CID, account.Email, database.UserTypeCandidate)
	if err != nil {
		logger.Error("sign token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	recordLoginAttempt(ctx, h.db, identifier, database.UserTypeCandidate, database.LoginStatusSuccess, "", c)

	user := gin.H{
		"id":    account.CID,
		"email": pendingEmail(pending),
		"phone": pendingPhone(pending),
		"name":  account.Name,
		"role":  database.UserTypeCandidate,
	}
	if profile, err := loadProfilePayload(ctx, h.db, account.CID); err == nil && profile != nil {
		user["profile"] = profile
	}

	logger.Info("candidate login", slog.String("cid", account.CID))
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// bootstrapLegacyCandidate 用持久账号补建已验证的待验证影子记录。
// 返回 nil 表示持久表中也没有该邮箱。
func (h *CandidateAuthHandler) bootstrapLegacyCandidate(ctx context.Context, email string) (*database.CandidatePending, error) {
	var account database.CandidateAccount
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	pending := database.CandidatePending{
		Name:         account.Name,
		Email:        &account.Email,
		PasswordHash: account.PasswordHash,
		Verified:     true,
	}
	if err := h.db.WithContext(ctx).Create(&pending).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}

// Logout 将当前令牌拉黑至其自然过期。
func (h *CandidateAuthHandler) Logout(c *gin.Context) {
	logout(c, h.redis, h.authService.TokenTTL())
}
