package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/auth"
	"jobportal/internal/config"
	"jobportal/internal/database"
	"jobportal/internal/match"
	"jobportal/internal/notify"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	authService *auth.AuthService,
	redisClient redis.UniversalClient,
	dispatcher *notify.Dispatcher,
	enqueuer TaskEnqueuer,
	storageClient ResumeStorage,
	logger *slog.Logger,
) {
	hrAuthHandler := NewHRAuthHandler(
		db, authService, redisClient, dispatcher, logger,
		cfg.OTP.TTL, cfg.Auth.LoginFailWindow, cfg.Auth.LoginFailThreshold,
		cfg.Auth.ResendCooldownWindow, cfg.Auth.ResendCooldownMaxSends,
	)
	candidateAuthHandler := NewCandidateAuthHandler(
		db, authService, redisClient, dispatcher, logger,
		cfg.OTP.TTL, cfg.Auth.LoginFailWindow, cfg.Auth.LoginFailThreshold,
		cfg.Auth.ResendCooldownWindow, cfg.Auth.ResendCooldownMaxSends,
	)
	sessionHandler := NewSessionHandler(db, logger)
	jobHandler := NewJobHandler(db, logger)
	profileHandler := NewProfileHandler(db, logger)
	applicationHandler := NewApplicationHandler(db, match.NewCalculator(db), enqueuer, redisClient, logger)
	resumeHandler := NewResumeHandler(db, storageClient, logger, cfg.Clamd.Addr)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(authService, redisClient)
	requireHR := middleware.RequireRole(database.UserTypeHR)
	requireCandidate := middleware.RequireRole(database.UserTypeCandidate)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		hrAuth := v1.Group("/auth/hr")
		{
			hrAuth.POST("/signup", hrAuthHandler.Signup)
			hrAuth.POST("/verify-otp", hrAuthHandler.VerifyOTP)
			hrAuth.POST("/resend-otp", hrAuthHandler.ResendOTP)
			hrAuth.POST("/login", hrAuthHandler.Login)
			hrAuth.POST("/logout", authMiddleware, hrAuthHandler.Logout)
			hrAuth.GET("/login-history", authMiddleware, requireHR, sessionHandler.History)
		}

		candidateAuth := v1.Group("/auth/candidate")
		{
			candidateAuth.POST("/signup", candidateAuthHandler.Signup)
			candidateAuth.POST("/verify-otp", candidateAuthHandler.VerifyOTP)
			candidateAuth.POST("/resend-otp", candidateAuthHandler.ResendOTP)
			candidateAuth.POST("/login", candidateAuthHandler.Login)
			candidateAuth.POST("/logout", authMiddleware, candidateAuthHandler.Logout)
			candidateAuth.GET("/login-history", authMiddleware, requireCandidate, sessionHandler.History)
		}

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", jobHandler.ListPublic)
			jobs.GET("/:id", jobHandler.Get)

			hrJobs := jobs.Group("")
			hrJobs.Use(authMiddleware, requireHR)
			{
				hrJobs.GET("/mine", jobHandler.ListMine)
				hrJobs.POST("", jobHandler.Create)
				hrJobs.PUT("/:id", jobHandler.Update)
				hrJobs.PATCH("/:id/toggle", jobHandler.Toggle)
				hrJobs.DELETE("/:id", jobHandler.Delete)

				hrJobs.GET("/:id/applications", applicationHandler.ListApplicants)
				hrJobs.PATCH("/:id/applications/:applicationID", applicationHandler.UpdateStatus)
				hrJobs.GET("/:id/applications/:applicationID/resume", resumeHandler.DownloadApplicant)
			}
		}

		candidate := v1.Group("/candidate")
		candidate.Use(authMiddleware, requireCandidate)
		{
			candidate.GET("/profile", profileHandler.GetProfile)
			candidate.PUT("/profile", profileHandler.SaveProfile)

			candidate.POST("/applications", applicationHandler.Apply)
			candidate.GET("/applications", applicationHandler.ListMine)

			candidate.POST("/saved-jobs", applicationHandler.ToggleSaved)
			candidate.GET("/saved-jobs", applicationHandler.ListSaved)

			candidate.POST("/resume", resumeHandler.Upload)
			candidate.GET("/resume/download-link", resumeHandler.Download)
		}
	}
}
