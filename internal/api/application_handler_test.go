package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/auth"
	"jobportal/internal/database"
	"jobportal/internal/match"
	"jobportal/internal/tasks"
)

func newApplicationRouter(t *testing.T, db *gorm.DB, enqueuer *fakeEnqueuer) (*gin.Engine, *auth.AuthService) {
	t.Helper()
	svc := newTestAuthService(t)
	h := NewApplicationHandler(db, match.NewCalculator(db), enqueuer, nil, discardLogger())

	r := gin.New()
	authMW := middleware.AuthMiddleware(svc, nil)

	candidate := r.Group("/v1/candidate")
	candidate.Use(authMW, middleware.RequireRole(database.UserTypeCandidate))
	candidate.POST("/applications", h.Apply)
	candidate.GET("/applications", h.ListMine)
	candidate.POST("/saved-jobs", h.ToggleSaved)
	candidate.GET("/saved-jobs", h.ListSaved)

	hr := r.Group("/v1/jobs")
	hr.Use(authMW, middleware.RequireRole(database.UserTypeHR))
	hr.GET("/:id/applications", h.ListApplicants)
	hr.PATCH("/:id/applications/:applicationID", h.UpdateStatus)
	return r, svc
}

func seedOpenJob(t *testing.T, db *gorm.DB) database.JobDescription {
	t.Helper()
	job := database.JobDescription{
		JDID:        "DA001",
		Title:       "Data Analyst",
		Company:     "Acme Corp",
		Location:    "Pune",
		Salary:      "12 LPA",
		Experience:  "senior",
		Description: "analyse data pipelines",
		Enabled:     true,
		PostedBy:    "HRID001",
	}
	if err := db.Create(&job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func seedMatchingProfile(t *testing.T, db *gorm.DB, cid string) {
	t.Helper()
	profile := database.CandidateProfile{
		CandidateID:       cid,
		FullName:          "Ravi Kumar",
		Email:             "ravi@gmail.com",
		ExperienceLevel:   "senior",
		CurrentLocation:   "Mumbai",
		PreferredLocation: "Pune",
		Completed:         true,
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	exp := database.Experience{CandidateID: cid, Company: "Acme", Role: "Data Analyst", Current: true}
	if err := db.Create(&exp).Error; err != nil {
		t.Fatalf("seed experience: %v", err)
	}
	edu := database.Education{CandidateID: cid, Degree: "B.Tech", Institution: "IIT"}
	if err := db.Create(&edu).Error; err != nil {
		t.Fatalf("seed education: %v", err)
	}
}

func TestApplySnapshotsMatchScore(t *testing.T) {
	db := newTestDB(t)
	seedOpenJob(t, db)
	seedMatchingProfile(t, db, "CID001")
	enqueuer := &fakeEnqueuer{}
	r, svc := newApplicationRouter(t, db, enqueuer)
	header := bearerHeader(t, svc, "CID001", "ravi@gmail.com", database.UserTypeCandidate)

	w := doJSON(t, r, http.MethodPost, "/v1/candidate/applications", gin.H{"jobId": "DA001"}, header)
	if w.Code != http.StatusCreated {
		t.Fatalf("apply status = %d, body %s", w.Code, w.Body.String())
	}
	if score := decodeBody(t, w)["matchScore"]; score != float64(100) {
		t.Fatalf("matchScore = %v, want 100", score)
	}

	var app database.Application
	if err := db.Where("candidate_id = ? AND job_id = ?", "CID001", "DA001").First(&app).Error; err != nil {
		t.Fatalf("load application: %v", err)
	}
	if app.Status != "pending" || app.MatchScore != 100 {
		t.Fatalf("unexpected application %+v", app)
	}
	var breakdown map[string]int
	if err := json.Unmarshal(app.MatchBreakdown, &breakdown); err != nil {
		t.Fatalf("decode breakdown: %v", err)
	}
	if breakdown["role"] != 40 || breakdown["completed"] != 10 {
		t.Fatalf("unexpected breakdown %v", breakdown)
	}

	if len(enqueuer.tasks) != 1 || enqueuer.tasks[0].Type() != tasks.TypeApplicationReceived {
		t.Fatalf("enqueued tasks = %+v", enqueuer.tasks)
	}
	var payload tasks.ApplicationReceivedPayload
	if err := json.Unmarshal(enqueuer.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Email != "ravi@gmail.com" || payload.JobTitle != "Data Analyst" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestApplyGates(t *testing.T) {
	db := newTestDB(t)
	job := seedOpenJob(t, db)
	r, svc := newApplicationRouter(t, db, &fakeEnqueuer{})
	header := bearerHeader(t, svc, "CID001", "ravi@gmail.com", database.UserTypeCandidate)

	// 档案未完成不能投递。
	w := doJSON(t, r, http.MethodPost, "/v1/candidate/applications", gin.H{"jobId": "DA001"}, header)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("incomplete profile status = %d, want 400", w.Code)
	}
	if decodeBody(t, w)["error"] != "please complete your profile before applying" {
		t.Fatalf("unexpected error body %s", w.Body.String())
	}

	seedMatchingProfile(t, db, "CID001")

	// 停用职位等同不存在。
	db.Model(&job).Update("enabled", false)
	w = doJSON(t, r, http.MethodPost, "/v1/candidate/applications", gin.H{"jobId": "DA001"}, header)
	if w.Code != http.StatusNotFound {
		t.Fatalf("disabled job status = %d, want 404", w.Code)
	}
	db.Model(&job).Update("enabled", true)

	w = doJSON(t, r, http.MethodPost, "/v1/candidate/applications", gin.H{"jobId": "DA001"}, header)
	if w.Code != http.StatusCreated {
		t.Fatalf("apply status = %d", w.Code)
	}

	// 重复投递冲突。
	w = doJSON(t, r, http.MethodPost, "/v1/candidate/applications", gin.H{"jobId": "DA001"}, header)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate apply status = %d, want 409", w.Code)
	}
}

func TestListMineIncludesJob(t *testing.T) {
	db := newTestDB(t)
	seedOpenJob(t, db)
	seedMatchingProfile(t, db, "CID001")
	r, svc := newApplicationRouter(t, db, &fakeEnqueuer{})
	header := bearerHeader(t, svc, "CID001", "ravi@gmail.com", database.UserTypeCandidate)

	doJSON(t, r, http.MethodPost, "/v1/candidate/applications", gin.H{"jobId": "DA001"}, header)

	w := doJSON(t, r, http.MethodGet, "/v1/candidate/applications", nil, header)
	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("applications = %d, want 1", len(out))
	}
	job, ok := out[0]["job"].(map[string]any)
	if !ok || job["title"] != "Data Analyst" {
		t.Fatalf("missing job payload in %v", out[0])
	}
}

func TestApplicantListAndStatusUpdate(t *testing.T) {
	db := newTestDB(t)
	seedOpenJob(t, db)
	seedMatchingProfile(t, db, "CID001")
	if err := db.Create(&database.CandidateAccount{
		CID: "CID001", Name: "Ravi Kumar", Email: "ravi@gmail.com", PasswordHash: "x",
	}).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	r, svc := newApplicationRouter(t, db, &fakeEnqueuer{})
	candidateHdr := bearerHeader(t, svc, "CID001", "ravi@gmail.com", database.UserTypeCandidate)
	ownerHdr := bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR)
	otherHdr := bearerHeader(t, svc, "HRID002", "x@gmail.com", database.UserTypeHR)

	doJSON(t, r, http.MethodPost, "/v1/candidate/applications", gin.H{"jobId": "DA001"}, candidateHdr)

	// 非属主不可见。
	w := doJSON(t, r, http.MethodGet, "/v1/jobs/DA001/applications", nil, otherHdr)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign applicant list status = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/jobs/DA001/applications", nil, ownerHdr)
	var applicants []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &applicants); err != nil {
		t.Fatalf("decode applicants: %v", err)
	}
	if len(applicants) != 1 {
		t.Fatalf("applicants = %d, want 1", len(applicants))
	}
	if applicants[0]["matchScore"] != float64(100) || applicants[0]["name"] != "Ravi Kumar" {
		t.Fatalf("unexpected applicant %v", applicants[0])
	}
	if _, ok := applicants[0]["matchBreakdown"].(map[string]any); !ok {
		t.Fatalf("missing breakdown in %v", applicants[0])
	}

	appID := int(applicants[0]["id"].(float64))

	w = doJSON(t, r, http.MethodPatch, "/v1/jobs/DA001/applications/"+strconv.Itoa(appID), gin.H{"status": "promoted"}, ownerHdr)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid status code = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodPatch, "/v1/jobs/DA001/applications/"+strconv.Itoa(appID), gin.H{"status": "shortlisted"}, ownerHdr)
	if w.Code != http.StatusOK {
		t.Fatalf("status update code = %d, body %s", w.Code, w.Body.String())
	}
	var app database.Application
	db.First(&app, appID)
	if app.Status != "shortlisted" {
		t.Fatalf("status = %q, want shortlisted", app.Status)
	}
}

func TestSavedJobsToggle(t *testing.T) {
	db := newTestDB(t)
	seedOpenJob(t, db)
	r, svc := newApplicationRouter(t, db, &fakeEnqueuer{})
	header := bearerHeader(t, svc, "CID001", "ravi@gmail.com", database.UserTypeCandidate)

	w := doJSON(t, r, http.MethodPost, "/v1/candidate/saved-jobs", gin.H{"jobId": "NOPE"}, header)
	if w.Code != http.StatusNotFound {
		t.Fatalf("save unknown job status = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/candidate/saved-jobs", gin.H{"jobId": "DA001"}, header)
	if decodeBody(t, w)["saved"] != true {
		t.Fatalf("first toggle body %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/v1/candidate/saved-jobs", nil, header)
	var saved []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	if len(saved) != 1 || saved[0]["id"] != "DA001" {
		t.Fatalf("saved list %v", saved)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/candidate/saved-jobs", gin.H{"jobId": "DA001"}, header)
	if decodeBody(t, w)["saved"] != false {
		t.Fatalf("second toggle body %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/v1/candidate/saved-jobs", nil, header)
	if w.Body.String() != "[]" {
		t.Fatalf("saved list after unsave = %s, want empty", w.Body.String())
	}
}
