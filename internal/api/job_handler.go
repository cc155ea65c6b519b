package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/database"
)

// JobHandler 处理职位的发布、更新、启停与查询。
type JobHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewJobHandler 构造职位处理器。
func NewJobHandler(db *gorm.DB, logger *slog.Logger) *JobHandler {
	return &JobHandler{db: db, logger: logger}
}

// jdidPrefix 从职位标题提取每个词的首字母（最多 5 个，大写）。
func jdidPrefix(title string) string {
	var letters []rune
	for _, word := range strings.Fields(title) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				letters = append(letters, unicode.ToUpper(r))
				break
			}
		}
		if len(letters) == 5 {
			break
		}
	}
	if len(letters) == 0 {
		return "JD"
	}
	return string(letters)
}

// generateJDID 生成 前缀+三位序号 形式的职位编号（如 DA001）。
func generateJDID(tx *gorm.DB, title string) (string, error) {
	return nextSequenceID(tx, &database.JobDescription{}, "jdid", jdidPrefix(title), 3)
}

func jobPayload(job database.JobDescription) gin.H {
	return gin.H{
		"id":          job.JDID,
		"title":       job.Title,
		"company":     job.Company,
		"location":    job.Location,
		"salary":      job.Salary,
		"experience":  job.Experience,
		"description": job.Description,
		"enabled":     job.Enabled,
		"postedOn":    job.CreatedAt,
	}
}

// ListPublic 返回所有启用中的职位，无需登录。
func (h *JobHandler) ListPublic(c *gin.Context) {
	var jobs []database.JobDescription
	if err := h.db.WithContext(c.Request.Context()).
		Where("enabled = ?", true).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list jobs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobPayload(job))
	}
	c.JSON(http.StatusOK, out)
}

// Get 返回单个职位，无需登录。
func (h *JobHandler) Get(c *gin.Context) {
	var job database.JobDescription
	if err := h.db.WithContext(c.Request.Context()).
		Where("jdid = ?", c.Param("id")).
		First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return
		}
		middleware.LoggerFromContext(c).Error("get job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, jobPayload(job))
}

// ListMine 返回当前 HR 发布的全部职位（含停用）。
func (h *JobHandler) ListMine(c *gin.Context) {
	var jobs []database.JobDescription
	if err := h.db.WithContext(c.Request.Context()).
		Where("posted_by = ?", middleware.UserID(c)).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list my jobs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	out := make([]gin.H, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobPayload(job))
	}
	c.JSON(http.StatusOK, out)
}

type jobRequest struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Salary      string `json:"salary"`
	Experience  string `json:"experience"`
	Description string `json:"description"`
}

// Create 发布新职位，职位编号由标题派生。
func (h *JobHandler) Create(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	hrID := middleware.UserID(c)
	logger := middleware.LoggerFromContext(c)

	req.Title = strings.TrimSpace(req.Title)
	req.Company = strings.TrimSpace(req.Company)
	req.Location = strings.TrimSpace(req.Location)
	req.Description = strings.TrimSpace(req.Description)

	// 未填公司时回落到 HR 账号上的公司名。
	if req.Company == "" {
		var account database.HRAccount
		if err := h.db.WithContext(ctx).Where("hrid = ?", hrID).First(&account).Error; err == nil {
			req.Company = account.Company
		}
	}

	var missing []string
	if req.Title == "" {
		missing = append(missing, "title")
	}
	if req.Company == "" {
		missing = append(missing, "company")
	}
	if req.Location == "" {
		missing = append(missing, "location")
	}
	if req.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		BadRequest(c, "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	var job database.JobDescription
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		jdid, err := generateJDID(tx, req.Title)
		if err != nil {
			return err
		}
		job = database.JobDescription{
			JDID:        jdid,
			Title:       req.Title,
			Company:     req.Company,
			Location:    req.Location,
			Salary:      req.Salary,
			Experience:  req.Experience,
			Description: req.Description,
			Enabled:     true,
			PostedBy:    hrID,
		}
		return tx.Create(&job).Error
	})
	if err != nil {
		logger.Error("create job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("job posted", slog.String("jdid", job.JDID), slog.String("hrid", hrID))
	c.JSON(http.StatusCreated, jobPayload(job))
}

// Update 更新职位。标题/经验/薪资变化时重新生成职位编号，
// 并级联更新投递与收藏中的外键。
func (h *JobHandler) Update(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	jobID := c.Param("id")
	hrID := middleware.UserID(c)
	logger := middleware.LoggerFromContext(c)

	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	req.Salary = strings.TrimSpace(req.Salary)
	req.Experience = strings.TrimSpace(req.Experience)
	req.Description = strings.TrimSpace(req.Description)

	var updated database.JobDescription
	notFound := false
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job database.JobDescription
		err := tx.Where("jdid = ? AND posted_by = ?", jobID, hrID).First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound = true
			return nil
		}
		if err != nil {
			return err
		}

		titleChanged := req.Title != "" && !strings.EqualFold(req.Title, job.Title)
		experienceChanged := req.Experience != "" && req.Experience != job.Experience
		salaryChanged := req.Salary != "" && req.Salary != job.Salary

		if req.Title != "" {
			job.Title = req.Title
		}
		if req.Location != "" {
			job.Location = req.Location
		}
		if req.Salary != "" {
			job.Salary = req.Salary
		}
		if req.Experience != "" {
			job.Experience = req.Experience
		}
		if req.Description != "" {
			job.Description = req.Description
		}

		if titleChanged || experienceChanged || salaryChanged {
			newJDID, err := generateJDID(tx, job.Title)
			if err != nil {
				return err
			}
			if newJDID != job.JDID {
				oldJDID := job.JDID
				job.JDID = newJDID
				if err := tx.Model(&database.Application{}).
					Where("job_id = ?", oldJDID).
					Update("job_id", newJDID).Error; err != nil {
					return err
				}
				if err := tx.Model(&database.SavedJob{}).
					Where("job_id = ?", oldJDID).
					Update("job_id", newJDID).Error; err != nil {
					return err
				}
				logger.Info("jdid regenerated", slog.String("old", oldJDID), slog.String("new", newJDID))
			}
		}

		updated = job
		return tx.Save(&job).Error
	})
	if err != nil {
		logger.Error("update job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if notFound {
		NotFound(c, "job not found or access denied")
		return
	}

	c.JSON(http.StatusOK, jobPayload(updated))
}

type jobToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// Toggle 启用或停用职位。
func (h *JobHandler) Toggle(c *gin.Context) {
	var req jobToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	jobID := c.Param("id")
	hrID := middleware.UserID(c)

	var job database.JobDescription
	if err := h.db.WithContext(ctx).Where("jdid = ? AND posted_by = ?", jobID, hrID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found or access denied")
			return
		}
		middleware.LoggerFromContext(c).Error("toggle job lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.db.WithContext(ctx).Model(&job).Update("enabled", req.Enabled).Error; err != nil {
		middleware.LoggerFromContext(c).Error("toggle job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job status updated", "enabled": req.Enabled})
}

// Delete 删除职位。
func (h *JobHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")
	hrID := middleware.UserID(c)

	var job database.JobDescription
	if err := h.db.WithContext(ctx).Where("jdid = ? AND posted_by = ?", jobID, hrID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found or access denied")
			return
		}
		middleware.LoggerFromContext(c).Error("delete job lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.db.WithContext(ctx).Delete(&job).Error; err != nil {
		middleware.LoggerFromContext(c).Error("delete job failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job deleted successfully"})
}
