package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 用户类型常量，登录流水与令牌声明共用。
const (
	UserTypeHR        = "hr"
	UserTypeCandidate = "candidate"
)

// 登录流水状态常量。
const (
	LoginStatusSuccess = "success"
	LoginStatusFailed  = "failed"
)

// HRPending 表示尚未完成 OTP 验证的 HR 注册记录。
// 验证通过后验证码字段被清空，但记录本身保留。
type HRPending struct {
	gorm.Model
	FullName     string  `gorm:"size:255"`
	Email        *string `gorm:"uniqueIndex;size:255"`
	Company      string  `gorm:"size:255"`
	PasswordHash string  `gorm:"size:255"`
	OTPCode      string  `gorm:"size:16"`
	OTPExpiry    string  `gorm:"size:64"` // 存储层可能返回多种时间格式，统一由 otp.ParseExpiry 解析
	Verified     bool    `gorm:"default:false"`
}

// CandidatePending 表示尚未完成 OTP 验证的候选人注册记录。
// 邮箱与手机号允许只填其一；两者都使用可空唯一索引。
type CandidatePending struct {
	gorm.Model
	Name         string  `gorm:"size:255"`
	Email        *string `gorm:"uniqueIndex;size:255"`
	Phone        *string `gorm:"uniqueIndex;size:20"`
	PasswordHash string  `gorm:"size:255"`
	OTPCode      string  `gorm:"size:16"`
	OTPExpiry    string  `gorm:"size:64"`
	Verified     bool    `gorm:"default:false"`
}

// HRAccount 表示已验证的 HR 账号（持久注册表）。
type HRAccount struct {
	gorm.Model
	HRID         string `gorm:"column:hrid;uniqueIndex;size:20"`
	FullName     string `gorm:"size:255"`
	Email        string `gorm:"uniqueIndex;size:255"`
	Company      string `gorm:"size:255"`
	PasswordHash string `gorm:"size:255"`
}

// CandidateAccount 表示已验证的候选人账号（持久注册表）。
// 仅用手机号注册的候选人会得到一个合成邮箱，保证唯一邮箱约束不被破坏。
type CandidateAccount struct {
	gorm.Model
	CID          string `gorm:"column:cid;uniqueIndex;size:20"`
	Name         string `gorm:"size:255"`
	Email        string `gorm:"uniqueIndex;size:255"`
	PasswordHash string `gorm:"size:255"`
}

// CandidateProfile 表示候选人的求职档案，每个候选人一行。
// 子集合（教育/工作/证书）在每次保存时整体替换。
type CandidateProfile struct {
	gorm.Model
	CandidateID       string `gorm:"uniqueIndex;size:20"`
	FullName          string `gorm:"size:255"`
	Email             string `gorm:"size:255"`
	Phone             string `gorm:"size:20"`
	ExperienceLevel   string `gorm:"size:64"`
	ServingNotice     string `gorm:"size:16"`
	NoticePeriod      string `gorm:"size:64"`
	LastWorkingDay    string `gorm:"size:64"`
	LinkedinURL       string `gorm:"size:512"`
	PortfolioURL      string `gorm:"size:512"`
	CurrentLocation   string `gorm:"size:255"`
	PreferredLocation string `gorm:"size:255"`
	ResumeObjectKey   string `gorm:"size:512"`
	ResumeFileName    string `gorm:"size:255"`
	Completed         bool   `gorm:"default:false"`
}

// Experience 是档案的工作经历子记录。
type Experience struct {
	gorm.Model
	CandidateID string `gorm:"index;size:20"`
	Company     string `gorm:"size:255"`
	Role        string `gorm:"size:255"`
	StartMonth  string `gorm:"size:32"`
	EndMonth    string `gorm:"size:32"`
	Current     bool   `gorm:"default:false"`
}

// Education 是档案的教育经历子记录。
type Education struct {
	gorm.Model
	CandidateID string `gorm:"index;size:20"`
	Degree      string `gorm:"size:255"`
	Institution string `gorm:"size:255"`
	Score       string `gorm:"size:32"`
	StartMonth  string `gorm:"size:32"`
	EndMonth    string `gorm:"size:32"`
}

// Certification 是档案的证书子记录。
type Certification struct {
	gorm.Model
	CandidateID string `gorm:"index;size:20"`
	Name        string `gorm:"size:255"`
	Issuer      string `gorm:"size:255"`
	EndMonth    string `gorm:"size:32"`
}

// JobDescription 表示 HR 发布的职位。
// JDID 由标题首字母缩写加序号生成；标题/经验/薪资变更时会重新生成，
// 并级联更新 Application 与 SavedJob 中的外键。
type JobDescription struct {
	gorm.Model
	JDID        string `gorm:"column:jdid;uniqueIndex;size:20"`
	Title       string `gorm:"size:255"`
	Company     string `gorm:"size:255"`
	Location    string `gorm:"size:255"`
	Salary      string `gorm:"size:64"`
	Experience  string `gorm:"size:64"`
	Description string `gorm:"type:text"`
	Enabled     bool   `gorm:"default:true"`
	PostedBy    string `gorm:"index;size:20"`
}

// Application 表示候选人对职位的投递。
// (candidate, job) 对唯一；创建后除状态外不可变。
// 匹配分数与五项子分在投递时刻快照，供 HR 端筛选参考。
type Application struct {
	gorm.Model
	CandidateID    string         `gorm:"size:20;uniqueIndex:idx_applications_candidate_job"`
	JobID          string         `gorm:"size:20;uniqueIndex:idx_applications_candidate_job"`
	Status         string         `gorm:"size:32;default:pending"`
	MatchScore     int            `gorm:"default:0"`
	MatchBreakdown datatypes.JSON `gorm:"type:jsonb"`
}

// SavedJob 表示候选人收藏的职位。
type SavedJob struct {
	gorm.Model
	CandidateID string `gorm:"size:20;uniqueIndex:idx_saved_jobs_candidate_job"`
	JobID       string `gorm:"size:20;uniqueIndex:idx_saved_jobs_candidate_job"`
}

// LoginAttempt 是只追加的登录流水，用于滑动窗口限流与审计。
type LoginAttempt struct {
	gorm.Model
	Identifier    string `gorm:"index;size:255"` // 邮箱或归一化手机号
	UserType      string `gorm:"size:16"`
	Status        string `gorm:"size:16"`
	FailureReason string `gorm:"size:255"`
	IPAddress     string `gorm:"size:64"`
	UserAgent     string `gorm:"size:512"`
}

// AllModels 返回 AutoMigrate 需要的全部模型。
func AllModels() []any {
	return []any{
		&HRPending{},
		&CandidatePending{},
		&HRAccount{},
		&CandidateAccount{},
		&CandidateProfile{},
		&Experience{},
		&Education{},
		&Certification{},
		&JobDescription{},
		&Application{},
		&SavedJob{},
		&LoginAttempt{},
	}
}
