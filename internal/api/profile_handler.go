package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/database"
)

// ProfileHandler 处理候选人求职档案的读写。
type ProfileHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewProfileHandler 构造档案处理器。
func NewProfileHandler(db *gorm.DB, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{db: db, logger: logger}
}

type educationEntry struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	CGPA        string `json:"cgpa"`
	StartMonth  string `json:"startMonth"`
	EndMonth    string `json:"endMonth"`
}

type certificationEntry struct {
	Certification string `json:"certification"`
	Issuer        string `json:"issuer"`
	EndMonth      string `json:"endMonth"`
}

type experienceEntry struct {
	Company    string `json:"company"`
	Role       string `json:"role"`
	StartMonth string `json:"startMonth"`
	EndMonth   string `json:"endMonth"`
	IsCurrent  bool   `json:"isCurrent"`
}

type profileRequest struct {
	FullName          string               `json:"fullName"`
	Email             string               `json:"email"`
	Phone             string               `json:"phone"`
	ExperienceLevel   string               `json:"experienceLevel"`
	ServingNotice     string               `json:"servingNotice"`
	NoticePeriod      string               `json:"noticePeriod"`
	LastWorkingDay    string               `json:"lastWorkingDay"`
	LinkedinURL       string               `json:"linkedinUrl"`
	PortfolioURL      string               `json:"portfolioUrl"`
	CurrentLocation   string               `json:"currentLocation"`
	PreferredLocation string               `json:"preferredLocation"`
	Completed         bool                 `json:"completed"`
	Education         []educationEntry     `json:"education"`
	Certifications    []certificationEntry `json:"certifications"`
	Experiences       []experienceEntry    `json:"experiences"`
}

// GetProfile 返回当前候选人的档案；没有档案时返回空壳以便前端直接渲染表单。
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	cid := middleware.UserID(c)

	payload, err := loadProfilePayload(ctx, h.db, cid)
	if err != nil {
		middleware.LoggerFromContext(c).Error("load profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if payload == nil {
		payload = emptyProfilePayload(middleware.UserEmail(c))
	}
	c.JSON(http.StatusOK, payload)
}

// SaveProfile 保存档案主记录并整体替换三类子记录。
// 子记录不支持部分更新，保存即全量覆盖。
func (h *ProfileHandler) SaveProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	cid := middleware.UserID(c)
	logger := middleware.LoggerFromContext(c)

	email := req.Email
	if email == "" {
		email = middleware.UserEmail(c)
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile database.CandidateProfile
		err := tx.Where("candidate_id = ?", cid).First(&profile).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		profile.CandidateID = cid
		profile.FullName = req.FullName
		profile.Email = email
		profile.Phone = req.Phone
		profile.ExperienceLevel = req.ExperienceLevel
		profile.ServingNotice = req.ServingNotice
		profile.NoticePeriod = req.NoticePeriod
		profile.LastWorkingDay = req.LastWorkingDay
		profile.LinkedinURL = req.LinkedinURL
		profile.PortfolioURL = req.PortfolioURL
		profile.CurrentLocation = req.CurrentLocation
		profile.PreferredLocation = req.PreferredLocation
		profile.Completed = req.Completed
		if err := tx.Save(&profile).Error; err != nil {
			return err
		}

		if err := tx.Where("candidate_id = ?", cid).Delete(&database.Education{}).Error; err != nil {
			return err
		}
		for _, entry := range req.Education {
			if entry.Degree == "" && entry.Institution == "" && entry.CGPA == "" && entry.StartMonth == "" && entry.EndMonth == "" {
				continue
			}
			row := database.Education{
				CandidateID: cid,
				Degree:      entry.Degree,
				Institution: entry.Institution,
				Score:       entry.CGPA,
				StartMonth:  entry.StartMonth,
				EndMonth:    entry.EndMonth,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("candidate_id = ?", cid).Delete(&database.Certification{}).Error; err != nil {
			return err
		}
		for _, entry := range req.Certifications {
			if entry.Certification == "" && entry.Issuer == "" && entry.EndMonth == "" {
				continue
			}
			row := database.Certification{
				CandidateID: cid,
				Name:        entry.Certification,
				Issuer:      entry.Issuer,
				EndMonth:    entry.EndMonth,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("candidate_id = ?", cid).Delete(&database.Experience{}).Error; err != nil {
			return err
		}
		for _, entry := range req.Experiences {
			if entry.Company == "" && entry.Role == "" && entry.StartMonth == "" {
				continue
			}
			endMonth := entry.EndMonth
			if entry.IsCurrent {
				endMonth = ""
			}
			row := database.Experience{
				CandidateID: cid,
				Company:     entry.Company,
				Role:        entry.Role,
				StartMonth:  entry.StartMonth,
				EndMonth:    endMonth,
				Current:     entry.IsCurrent,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		logger.Error("save profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("profile saved", slog.String("cid", cid))
	c.JSON(http.StatusOK, gin.H{"message": "profile saved successfully"})
}

// loadProfilePayload 组装档案及其子记录的响应体；档案不存在时返回 nil。
func loadProfilePayload(ctx context.Context, db *gorm.DB, candidateID string) (gin.H, error) {
	var profile database.CandidateProfile
	if err := db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var educations []database.Education
	if err := db.WithContext(ctx).Where("candidate_id = ?", candidateID).Order("degree").Find(&educations).Error; err != nil {
		return nil, err
	}
	var certifications []database.Certification
	if err := db.WithContext(ctx).Where("candidate_id = ?", candidateID).Order("name").Find(&certifications).Error; err != nil {
		return nil, err
	}
	var experiences []database.Experience
	if err := db.WithContext(ctx).Where("candidate_id = ?", candidateID).Order("company").Find(&experiences).Error; err != nil {
		return nil, err
	}

	education := make([]gin.H, 0, len(educations))
	for _, e := range educations {
		education = append(education, gin.H{
			"degree":      e.Degree,
			"institution": e.Institution,
			"cgpa":        e.Score,
			"startMonth":  e.StartMonth,
			"endMonth":    e.EndMonth,
		})
	}
	certs := make([]gin.H, 0, len(certifications))
	for _, e := range certifications {
		certs = append(certs, gin.H{
			"certification": e.Name,
			"issuer":        e.Issuer,
			"endMonth":      e.EndMonth,
		})
	}
	exps := make([]gin.H, 0, len(experiences))
	for _, e := range experiences {
		exps = append(exps, gin.H{
			"company":    e.Company,
			"role":       e.Role,
			"startMonth": e.StartMonth,
			"endMonth":   e.EndMonth,
			"isCurrent":  e.Current,
		})
	}

	return gin.H{
		"fullName":          profile.FullName,
		"email":             profile.Email,
		"phone":             profile.Phone,
		"experienceLevel":   profile.ExperienceLevel,
		"servingNotice":     profile.ServingNotice,
		"noticePeriod":      profile.NoticePeriod,
		"lastWorkingDay":    profile.LastWorkingDay,
		"linkedinUrl":       profile.LinkedinURL,
		"portfolioUrl":      profile.PortfolioURL,
		"currentLocation":   profile.CurrentLocation,
		"preferredLocation": profile.PreferredLocation,
		"resumeFileName":    profile.ResumeFileName,
		"education":         education,
		"certifications":    certs,
		"experiences":       exps,
		"completed":         profile.Completed,
	}, nil
}

func emptyProfilePayload(email string) gin.H {
	return gin.H{
		"fullName":          "",
		"email":             email,
		"phone":             "",
		"experienceLevel":   "",
		"servingNotice":     "",
		"noticePeriod":      "",
		"lastWorkingDay":    "",
		"linkedinUrl":       "",
		"portfolioUrl":      "",
		"currentLocation":   "",
		"preferredLocation": "",
		"resumeFileName":    "",
		"education":         []gin.H{},
		"certifications":    []gin.H{},
		"experiences":       []gin.H{},
		"completed":         false,
	}
}
