package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/database"
	"jobportal/internal/match"
	"jobportal/internal/tasks"
)

// TaskEnqueuer 抽象异步任务入队，便于测试注入假实现。
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// 投递状态的合法集合。
var applicationStatuses = map[string]bool{
	"pending":     true,
	"reviewed":    true,
	"shortlisted": true,
	"rejected":    true,
	"hired":       true,
}

// ApplicationHandler 处理投递、收藏与 HR 端的申请人管理。
type ApplicationHandler struct {
	db       *gorm.DB
	matcher  *match.Calculator
	enqueuer TaskEnqueuer
	redis    redis.UniversalClient
	logger   *slog.Logger
}

// NewApplicationHandler 构造投递处理器。enqueuer 与 redisClient 可为 nil（测试场景）。
func NewApplicationHandler(db *gorm.DB, matcher *match.Calculator, enqueuer TaskEnqueuer, redisClient redis.UniversalClient, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		db:       db,
		matcher:  matcher,
		enqueuer: enqueuer,
		redis:    redisClient,
		logger:   logger,
	}
}

type applyRequest struct {
	JobID string `json:"jobId" binding:"required"`
}

// Apply 提交投递：职位必须启用、档案必须完成、不允许重复投递。
// 匹配分数与子分在提交时刻快照，之后不再重算。
func (h *ApplicationHandler) Apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	cid := middleware.UserID(c)
	logger := middleware.LoggerFromContext(c)

	var job database.JobDescription
	if err := h.db.WithContext(ctx).Where("jdid = ? AND enabled = ?", req.JobID, true).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found or not available")
			return
		}
		logger.Error("apply job lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var existing database.Application
	if err := h.db.WithContext(ctx).Where("candidate_id = ? AND job_id = ?", cid, req.JobID).First(&existing).Error; err == nil {
		Conflict(c, "already applied to this job")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("apply duplicate check failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var profile database.CandidateProfile
	if err := h.db.WithContext(ctx).Where("candidate_id = ? AND completed = ?", cid, true).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			BadRequest(c, "please complete your profile before applying")
			return
		}
		logger.Error("apply profile check failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	score, breakdown := h.matcher.Score(ctx, cid, req.JobID)
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		logger.Error("marshal breakdown failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	application := database.Application{
		CandidateID:    cid,
		JobID:          req.JobID,
		Status:         "pending",
		MatchScore:     score,
		MatchBreakdown: breakdownJSON,
	}
	if err := h.db.WithContext(ctx).Create(&application).Error; err != nil {
		// 并发重复投递会撞唯一索引，按冲突处理。
		var dup database.Application
		if h.db.WithContext(ctx).Where("candidate_id = ? AND job_id = ?", cid, req.JobID).First(&dup).Error == nil {
			Conflict(c, "already applied to this job")
			return
		}
		logger.Error("create application failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// 通知是尽力而为的附带动作，失败只记日志，不影响已提交的投递。
	h.notifyApplication(ctx, logger, job, profile, score)

	logger.Info("application submitted",
		slog.String("cid", cid),
		slog.String("jdid", req.JobID),
		slog.Int("match_score", score),
	)
	c.JSON(http.StatusCreated, gin.H{
		"message":    "application submitted successfully",
		"matchScore": score,
	})
}

// notifyApplication 投递落库后向 HR 推送实时事件，并入队确认邮件任务。
func (h *ApplicationHandler) notifyApplication(ctx context.Context, logger *slog.Logger, job database.JobDescription, profile database.CandidateProfile, score int) {
	if h.redis != nil {
		event, err := json.Marshal(gin.H{
			"type":          "application_received",
			"jobId":         job.JDID,
			"jobTitle":      job.Title,
			"candidateId":   profile.CandidateID,
			"candidateName": profile.FullName,
			"matchScore":    score,
		})
		if err == nil {
			if err := h.redis.Publish(ctx, tasks.HRNotifyChannel(job.PostedBy), event).Err(); err != nil {
				logger.Warn("publish application event failed", slog.Any("error", err))
			}
		}
	}

	if h.enqueuer != nil && profile.Email != "" {
		task, err := tasks.NewApplicationReceivedTask(profile.Email, profile.FullName, job.Title)
		if err != nil {
			logger.Warn("build notification task failed", slog.Any("error", err))
			return
		}
		if _, err := h.enqueuer.Enqueue(task); err != nil {
			logger.Warn("enqueue notification task failed", slog.Any("error", err))
		}
	}
}

// ListMine 返回当前候选人的全部投递及对应职位。
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	ctx := c.Request.Context()
	cid := middleware.UserID(c)

	var applications []database.Application
	if err := h.db.WithContext(ctx).
		Where("candidate_id = ?", cid).
		Order("created_at DESC").
		Find(&applications).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list applications failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]gin.H, 0, len(applications))
	for _, app := range applications {
		entry := gin.H{
			"id":         app.ID,
			"jobId":      app.JobID,
			"status":     app.Status,
			"appliedAt":  app.CreatedAt,
			"matchScore": app.MatchScore,
		}
		var job database.JobDescription
		if err := h.db.WithContext(ctx).Where("jdid = ?", app.JobID).First(&job).Error; err == nil {
			entry["job"] = jobPayload(job)
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, out)
}

// ListApplicants 返回某职位的申请人列表（含分数快照），仅职位属主可见。
func (h *ApplicationHandler) ListApplicants(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")
	hrID := middleware.UserID(c)

	var job database.JobDescription
	if err := h.db.WithContext(ctx).Where("jdid = ? AND posted_by = ?", jobID, hrID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found or access denied")
			return
		}
		middleware.LoggerFromContext(c).Error("applicants job lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var applications []database.Application
	if err := h.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("match_score DESC, created_at DESC").
		Find(&applications).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list applicants failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]gin.H, 0, len(applications))
	for _, app := range applications {
		entry := gin.H{
			"id":          app.ID,
			"candidateId": app.CandidateID,
			"status":      app.Status,
			"appliedAt":   app.CreatedAt,
			"matchScore":  app.MatchScore,
		}
		if len(app.MatchBreakdown) > 0 {
			entry["matchBreakdown"] = json.RawMessage(app.MatchBreakdown)
		}
		var account database.CandidateAccount
		if err := h.db.WithContext(ctx).Where("cid = ?", app.CandidateID).First(&account).Error; err == nil {
			entry["name"] = account.Name
			entry["email"] = account.Email
		}
		if profile, err := loadProfilePayload(ctx, h.db, app.CandidateID); err == nil && profile != nil {
			entry["profile"] = profile
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, out)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 更新投递状态，投递其余字段创建后不可变。
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !applicationStatuses[req.Status] {
		BadRequest(c, "invalid application status")
		return
	}

	ctx := c.Request.Context()
	jobID := c.Param("id")
	appID := c.Param("applicationID")
	hrID := middleware.UserID(c)

	var job database.JobDescription
	if err := h.db.WithContext(ctx).Where("jdid = ? AND posted_by = ?", jobID, hrID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found or access denied")
			return
		}
		middleware.LoggerFromContext(c).Error("status job lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var application database.Application
	if err := h.db.WithContext(ctx).Where("id = ? AND job_id = ?", appID, jobID).First(&application).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return
		}
		middleware.LoggerFromContext(c).Error("status application lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.db.WithContext(ctx).Model(&application).Update("status", req.Status).Error; err != nil {
		middleware.LoggerFromContext(c).Error("update status failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "application status updated", "status": req.Status})
}

type savedJobRequest struct {
	JobID string `json:"jobId" binding:"required"`
}

// ToggleSaved 收藏或取消收藏职位（已收藏则取消）。
func (h *ApplicationHandler) ToggleSaved(c *gin.Context) {
	var req savedJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	cid := middleware.UserID(c)
	logger := middleware.LoggerFromContext(c)

	var job database.JobDescription
	if err := h.db.WithContext(ctx).Where("jdid = ?", req.JobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		logger.Error("saved job lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var saved database.SavedJob
	err := h.db.WithContext(ctx).Where("candidate_id = ? AND job_id = ?", cid, req.JobID).First(&saved).Error
	switch {
	case err == nil:
		if err := h.db.WithContext(ctx).Delete(&saved).Error; err != nil {
			logger.Error("unsave job failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "job removed from saved", "saved": false})
	case errors.Is(err, gorm.ErrRecordNotFound):
		saved = database.SavedJob{CandidateID: cid, JobID: req.JobID}
		if err := h.db.WithContext(ctx).Create(&saved).Error; err != nil {
			logger.Error("save job failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "job saved", "saved": true})
	default:
		logger.Error("saved lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
	}
}

// ListSaved 返回当前候选人收藏的职位。
func (h *ApplicationHandler) ListSaved(c *gin.Context) {
	ctx := c.Request.Context()
	cid := middleware.UserID(c)

	var saved []database.SavedJob
	if err := h.db.WithContext(ctx).
		Where("candidate_id = ?", cid).
		Order("created_at DESC").
		Find(&saved).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list saved jobs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]gin.H, 0, len(saved))
	for _, s := range saved {
		var job database.JobDescription
		if err := h.db.WithContext(ctx).Where("jdid = ?", s.JobID).First(&job).Error; err == nil {
			out = append(out, jobPayload(job))
		}
	}
	c.JSON(http.StatusOK, out)
}
