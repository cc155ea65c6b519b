// Package match 实现候选人与职位的启发式匹配打分。
// 打分完全只读、确定，候选人或职位不存在时软失败返回 0。
package match

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"jobportal/internal/database"
)

// 各子项满分。五项恒参与评估，合计 100。
const (
	roleMax       = 40
	levelMax      = 20
	locationMax   = 20
	educationMax  = 10
	completedMax  = 10
	totalMax      = roleMax + levelMax + locationMax + educationMax + completedMax
	roleFallback  = 20 // 角色未命中但有任意工作经历
	levelFallback = 10 // 双方级别非空但桶不匹配
)

// Breakdown 记录五项子分，随投递一起快照存档。
type Breakdown struct {
	Role      int `json:"role"`
	Level     int `json:"level"`
	Location  int `json:"location"`
	Education int `json:"education"`
	Completed int `json:"completed"`
}

// Total 返回子分合计（未封顶、未折算）。
func (b Breakdown) Total() int {
	return b.Role + b.Level + b.Location + b.Education + b.Completed
}

// Calculator 基于数据库快照计算匹配度。
type Calculator struct {
	db *gorm.DB
}

// NewCalculator 构造打分器。
func NewCalculator(db *gorm.DB) *Calculator {
	return &Calculator{db: db}
}

// Score 计算候选人与职位的 0-100 匹配度。
// 候选人档案或职位缺失、或任何查询出错时返回 0（分数仅供参考，不做授权依据）。
func (c *Calculator) Score(ctx context.Context, candidateID, jobID string) (int, Breakdown) {
	var breakdown Breakdown

	var profile database.CandidateProfile
	if err := c.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		First(&profile).Error; err != nil {
		return 0, breakdown
	}

	var job database.JobDescription
	if err := c.db.WithContext(ctx).
		Where("jdid = ?", jobID).
		First(&job).Error; err != nil {
		return 0, breakdown
	}

	var experiences []database.Experience
	if err := c.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Find(&experiences).Error; err != nil {
		return 0, breakdown
	}

	var educationCount int64
	if err := c.db.WithContext(ctx).
		Model(&database.Education{}).
		Where("candidate_id = ?", candidateID).
		Count(&educationCount).Error; err != nil {
		return 0, breakdown
	}

	breakdown = Breakdown{
		Role:      scoreRole(job.Title, job.Description, experiences),
		Level:     scoreLevel(job.Experience, profile.ExperienceLevel),
		Location:  scoreLocation(job.Location, profile.PreferredLocation, profile.CurrentLocation),
		Education: scoreEducation(educationCount),
		Completed: scoreCompleted(profile.Completed),
	}

	score := breakdown.Total() * 100 / totalMax
	if score > 100 {
		score = 100
	}
	return score, breakdown
}

// scoreRole 按角色与职位标题/描述的包含关系打分。
// 任一角色整串出现在标题中，或角色的某个词出现在描述中，记满分；
// 没有命中但有工作经历记部分分；没有经历记 0。
func scoreRole(jobTitle, jobDescription string, experiences []database.Experience) int {
	title := strings.ToLower(jobTitle)
	description := strings.ToLower(jobDescription)

	for _, exp := range experiences {
		role := strings.ToLower(strings.TrimSpace(exp.Role))
		if role == "" {
			continue
		}
		if title != "" && strings.Contains(title, role) {
			return roleMax
		}
		// strings.Fields 丢弃空词，纯空白的角色不会命中任何描述。
		for _, word := range strings.Fields(role) {
			if description != "" && strings.Contains(description, word) {
				return roleMax
			}
		}
	}
	if len(experiences) > 0 {
		return roleFallback
	}
	return 0
}

// 级别桶：职位要求与候选人标签各自做包含检查，同桶即命中。
var levelBuckets = []struct {
	job       []string
	candidate []string
}{
	{[]string{"senior"}, []string{"senior"}},
	{[]string{"junior"}, []string{"junior"}},
	{[]string{"mid"}, []string{"mid", "intermediate"}},
	{[]string{"fresher"}, []string{"fresher", "entry"}},
}

func scoreLevel(jobExperience, candidateLevel string) int {
	jobExp := strings.ToLower(strings.TrimSpace(jobExperience))
	candLevel := strings.ToLower(strings.TrimSpace(candidateLevel))
	if jobExp == "" || candLevel == "" {
		return 0
	}
	for _, bucket := range levelBuckets {
		if containsAny(jobExp, bucket.job) && containsAny(candLevel, bucket.candidate) {
			return levelMax
		}
	}
	return levelFallback
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// scoreLocation 做大小写不敏感的双向包含检查：
// 优先匹配期望地点，其次当前地点，两者非空但都不匹配给保底分。
func scoreLocation(jobLocation, preferred, current string) int {
	job := strings.ToLower(strings.TrimSpace(jobLocation))
	pref := strings.ToLower(strings.TrimSpace(preferred))
	curr := strings.ToLower(strings.TrimSpace(current))

	if job == "" {
		return 0
	}
	if pref != "" && (strings.Contains(pref, job) || strings.Contains(job, pref)) {
		return locationMax
	}
	if curr != "" && (strings.Contains(curr, job) || strings.Contains(job, curr)) {
		return 15
	}
	if pref != "" || curr != "" {
		return 5
	}
	return 0
}

func scoreEducation(count int64) int {
	if count > 0 {
		return educationMax
	}
	return 0
}

func scoreCompleted(completed bool) int {
	if completed {
		return completedMax
	}
	return 0
}
