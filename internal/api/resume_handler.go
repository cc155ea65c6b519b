package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/database"
	"jobportal/internal/storage"
)

// 简历上传限制。
const (
	maxResumeSize      = 5 << 20 // 5 MiB
	resumeLinkDuration = 10 * time.Minute
)

var allowedResumeExts = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// ResumeStorage 抽象简历对象存取，便于测试注入假实现。
type ResumeStorage interface {
	UploadResume(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	PresignDownload(ctx context.Context, objectKey, fileName string, duration time.Duration) (string, error)
	DeleteResume(ctx context.Context, objectKey string) error
}

// ResumeHandler 负责简历文件的上传与下载链接签发。
type ResumeHandler struct {
	db        *gorm.DB
	storage   ResumeStorage
	logger    *slog.Logger
	clamdAddr string
}

// NewResumeHandler 返回 ResumeHandler 实例。clamdAddr 为空时跳过病毒扫描。
func NewResumeHandler(db *gorm.DB, storageClient ResumeStorage, logger *slog.Logger, clamdAddr string) *ResumeHandler {
	return &ResumeHandler{
		db:        db,
		storage:   storageClient,
		logger:    logger,
		clamdAddr: clamdAddr,
	}
}

// Upload 处理候选人简历上传，上传前扫描病毒。
// 新简历落库后旧对象会被尽力删除。
func (h *ResumeHandler) Upload(c *gin.Context) {
	cid := middleware.UserID(c)
	logger := middleware.LoggerFromContext(c)

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > maxResumeSize {
		BadRequest(c, "file too large, maximum size is 5MB")
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedResumeExts[ext] {
		BadRequest(c, "only pdf, doc and docx files are allowed")
		return
	}

	if h.clamdAddr != "" {
		clean, err := h.scanFile(file)
		if err != nil {
			logger.Error("scan resume failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			BadRequest(c, "malicious file detected")
			return
		}
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := storage.ResumeObjectKey(cid, file.Filename)
	ctx := c.Request.Context()
	if err := h.storage.UploadResume(ctx, objectKey, reader, file.Size, contentType); err != nil {
		logger.Error("upload resume failed", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	var profile database.CandidateProfile
	err = h.db.WithContext(ctx).Where("candidate_id = ?", cid).First(&profile).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("resume profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	oldKey := profile.ResumeObjectKey
	profile.CandidateID = cid
	profile.ResumeObjectKey = objectKey
	profile.ResumeFileName = file.Filename
	if err := h.db.WithContext(ctx).Save(&profile).Error; err != nil {
		logger.Error("save resume reference failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if oldKey != "" && oldKey != objectKey {
		if err := h.storage.DeleteResume(ctx, oldKey); err != nil {
			logger.Warn("delete previous resume failed", slog.Any("error", err))
		}
	}

	logger.Info("resume uploaded", slog.String("cid", cid), slog.String("object_key", objectKey))
	c.JSON(http.StatusCreated, gin.H{
		"message":  "resume uploaded successfully",
		"fileName": file.Filename,
	})
}

// scanFile 通过 clamd 扫描上传文件，返回文件是否干净。
func (h *ResumeHandler) scanFile(file *multipart.FileHeader) (bool, error) {
	reader, err := file.Open()
	if err != nil {
		return false, err
	}

	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(reader, abortChan)
	reader.Close()
	if err != nil {
		return false, err
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return false, nil
		}
	}
	return true, nil
}

// Download 为当前候选人签发自己简历的限时下载链接。
func (h *ResumeHandler) Download(c *gin.Context) {
	cid := middleware.UserID(c)
	h.presignFor(c, cid)
}

// DownloadApplicant 为职位属主签发某申请人简历的限时下载链接。
func (h *ResumeHandler) DownloadApplicant(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")
	hrID := middleware.UserID(c)

	var job database.JobDescription
	if err := h.db.WithContext(ctx).Where("jdid = ? AND posted_by = ?", jobID, hrID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found or access denied")
			return
		}
		middleware.LoggerFromContext(c).Error("resume job lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var application database.Application
	if err := h.db.WithContext(ctx).
		Where("id = ? AND job_id = ?", c.Param("applicationID"), jobID).
		First(&application).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return
		}
		middleware.LoggerFromContext(c).Error("resume application lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.presignFor(c, application.CandidateID)
}

func (h *ResumeHandler) presignFor(c *gin.Context, candidateID string) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var profile database.CandidateProfile
	if err := h.db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		logger.Error("resume profile lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if profile.ResumeObjectKey == "" {
		NotFound(c, "resume not found")
		return
	}

	url, err := h.storage.PresignDownload(ctx, profile.ResumeObjectKey, profile.ResumeFileName, resumeLinkDuration)
	if err != nil {
		logger.Error("presign resume failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":      url,
		"fileName": profile.ResumeFileName,
	})
}
