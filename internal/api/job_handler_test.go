package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/auth"
	"jobportal/internal/database"
)

func newJobRouter(t *testing.T, db *gorm.DB) (*gin.Engine, *auth.AuthService) {
	t.Helper()
	svc := newTestAuthService(t)
	h := NewJobHandler(db, discardLogger())

	r := gin.New()
	jobs := r.Group("/v1/jobs")
	jobs.GET("", h.ListPublic)
	jobs.GET("/:id", h.Get)

	hr := jobs.Group("")
	hr.Use(middleware.AuthMiddleware(svc, nil), middleware.RequireRole(database.UserTypeHR))
	hr.GET("/mine", h.ListMine)
	hr.POST("", h.Create)
	hr.PUT("/:id", h.Update)
	hr.PATCH("/:id/toggle", h.Toggle)
	hr.DELETE("/:id", h.Delete)
	return r, svc
}

func seedHRAccount(t *testing.T, db *gorm.DB, hrID, company string) {
	t.Helper()
	account := database.HRAccount{
		HRID:         hrID,
		FullName:     "HR " + hrID,
		Email:        hrID + "@gmail.com",
		Company:      company,
		PasswordHash: "x",
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed hr account: %v", err)
	}
}

func TestJDIDPrefix(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Data Analyst", "DA"},
		{"Senior Backend Engineer", "SBE"},
		{"one two three four five six", "OTTFF"},
		{"", "JD"},
		{"   ", "JD"},
		{"3d artist", "3A"},
	}
	for _, tc := range cases {
		if got := jdidPrefix(tc.title); got != tc.want {
			t.Errorf("jdidPrefix(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestJobCreateSequentialIDsAndCompanyFallback(t *testing.T) {
	db := newTestDB(t)
	seedHRAccount(t, db, "HRID001", "Acme Corp")
	r, svc := newJobRouter(t, db)
	header := bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR)

	body := gin.H{
		"title":       "Data Analyst",
		"location":    "Bengaluru",
		"salary":      "12 LPA",
		"experience":  "senior",
		"description": "analyse data",
	}
	w := doJSON(t, r, http.MethodPost, "/v1/jobs", body, header)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	first := decodeBody(t, w)
	if first["id"] != "DA001" {
		t.Fatalf("first jdid = %v, want DA001", first["id"])
	}
	if first["company"] != "Acme Corp" {
		t.Fatalf("company fallback = %v, want Acme Corp", first["company"])
	}

	w = doJSON(t, r, http.MethodPost, "/v1/jobs", body, header)
	if second := decodeBody(t, w); second["id"] != "DA002" {
		t.Fatalf("second jdid = %v, want DA002", second["id"])
	}
}

func TestJobCreateWithOverlappingPrefixes(t *testing.T) {
	db := newTestDB(t)
	r, svc := newJobRouter(t, db)
	header := bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR)

	post := func(title, want string) {
		t.Helper()
		w := doJSON(t, r, http.MethodPost, "/v1/jobs", gin.H{
			"title":       title,
			"company":     "Acme",
			"location":    "Pune",
			"description": "build things",
		}, header)
		if w.Code != http.StatusCreated {
			t.Fatalf("create %q status = %d, body %s", title, w.Code, w.Body.String())
		}
		if got := decodeBody(t, w)["id"]; got != want {
			t.Fatalf("create %q jdid = %v, want %s", title, got, want)
		}
	}

	// "Developer" 的前缀 D 是 "Data Analyst" 前缀 DA 的前缀，
	// 两条序列必须互不干扰。
	post("Data Analyst", "DA001")
	post("Developer", "D001")
	post("Developer", "D002")
	post("Data Analyst", "DA002")
}

func TestSequenceIDPastPaddingWidth(t *testing.T) {
	db := newTestDB(t)
	for _, jdid := range []string{"D999", "D1000"} {
		job := database.JobDescription{
			JDID: jdid, Title: "Developer", Company: "Acme",
			Location: "Pune", Description: "build things", Enabled: true, PostedBy: "HRID001",
		}
		if err := db.Create(&job).Error; err != nil {
			t.Fatalf("seed %s: %v", jdid, err)
		}
	}

	got, err := generateJDID(db, "Developer")
	if err != nil {
		t.Fatalf("generateJDID: %v", err)
	}
	if got != "D1001" {
		t.Fatalf("jdid after padding overflow = %q, want D1001", got)
	}
}

func TestJobCreateMissingFields(t *testing.T) {
	db := newTestDB(t)
	r, svc := newJobRouter(t, db)
	header := bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR)

	w := doJSON(t, r, http.MethodPost, "/v1/jobs", gin.H{"title": "X"}, header)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing fields status = %d, want 400", w.Code)
	}
}

func TestJobCreateRequiresHRRole(t *testing.T) {
	db := newTestDB(t)
	r, svc := newJobRouter(t, db)
	header := bearerHeader(t, svc, "CID001", "c@gmail.com", database.UserTypeCandidate)

	w := doJSON(t, r, http.MethodPost, "/v1/jobs", gin.H{"title": "X"}, header)
	if w.Code != http.StatusForbidden {
		t.Fatalf("candidate create status = %d, want 403", w.Code)
	}
}

func TestJobUpdateRegeneratesJDIDAndCascades(t *testing.T) {
	db := newTestDB(t)
	seedHRAccount(t, db, "HRID001", "Acme Corp")
	r, svc := newJobRouter(t, db)
	header := bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR)

	w := doJSON(t, r, http.MethodPost, "/v1/jobs", gin.H{
		"title":       "Data Analyst",
		"location":    "Pune",
		"description": "analyse data",
	}, header)
	jdid := decodeBody(t, w)["id"].(string)

	app := database.Application{CandidateID: "CID001", JobID: jdid, Status: "pending"}
	if err := db.Create(&app).Error; err != nil {
		t.Fatalf("seed application: %v", err)
	}
	saved := database.SavedJob{CandidateID: "CID001", JobID: jdid}
	if err := db.Create(&saved).Error; err != nil {
		t.Fatalf("seed saved job: %v", err)
	}

	w = doJSON(t, r, http.MethodPut, "/v1/jobs/"+jdid, gin.H{"title": "Backend Engineer"}, header)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	newID := decodeBody(t, w)["id"].(string)
	if newID != "BE001" {
		t.Fatalf("regenerated jdid = %q, want BE001", newID)
	}

	var appCount, savedCount int64
	db.Model(&database.Application{}).Where("job_id = ?", newID).Count(&appCount)
	db.Model(&database.SavedJob{}).Where("job_id = ?", newID).Count(&savedCount)
	if appCount != 1 || savedCount != 1 {
		t.Fatalf("cascade counts app=%d saved=%d, want 1/1", appCount, savedCount)
	}
}

func TestJobUpdateLocationKeepsJDID(t *testing.T) {
	db := newTestDB(t)
	r, svc := newJobRouter(t, db)
	header := bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR)

	w := doJSON(t, r, http.MethodPost, "/v1/jobs", gin.H{
		"title":       "Data Analyst",
		"company":     "Acme",
		"location":    "Pune",
		"description": "analyse data",
	}, header)
	jdid := decodeBody(t, w)["id"].(string)

	w = doJSON(t, r, http.MethodPut, "/v1/jobs/"+jdid, gin.H{"location": "Remote"}, header)
	if got := decodeBody(t, w)["id"]; got != jdid {
		t.Fatalf("jdid changed on location update: %v", got)
	}
}

func TestJobOwnershipEnforced(t *testing.T) {
	db := newTestDB(t)
	r, svc := newJobRouter(t, db)
	owner := bearerHeader(t, svc, "HRID001", "a@gmail.com", database.UserTypeHR)
	other := bearerHeader(t, svc, "HRID002", "b@gmail.com", database.UserTypeHR)

	w := doJSON(t, r, http.MethodPost, "/v1/jobs", gin.H{
		"title":       "Data Analyst",
		"company":     "Acme",
		"location":    "Pune",
		"description": "analyse data",
	}, owner)
	jdid := decodeBody(t, w)["id"].(string)

	w = doJSON(t, r, http.MethodPut, "/v1/jobs/"+jdid, gin.H{"title": "Hijacked"}, other)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign update status = %d, want 404", w.Code)
	}
	w = doJSON(t, r, http.MethodDelete, "/v1/jobs/"+jdid, nil, other)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete status = %d, want 404", w.Code)
	}
}

func TestJobPublicListingFiltersDisabled(t *testing.T) {
	db := newTestDB(t)
	r, svc := newJobRouter(t, db)
	header := bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR)

	w := doJSON(t, r, http.MethodPost, "/v1/jobs", gin.H{
		"title":       "Data Analyst",
		"company":     "Acme",
		"location":    "Pune",
		"description": "analyse data",
	}, header)
	jdid := decodeBody(t, w)["id"].(string)

	w = doJSON(t, r, http.MethodPatch, "/v1/jobs/"+jdid+"/toggle", gin.H{"enabled": false}, header)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/jobs", nil, nil)
	if w.Body.String() != "[]" {
		t.Fatalf("public list = %s, want empty", w.Body.String())
	}

	// 属主列表仍能看到停用职位。
	w = doJSON(t, r, http.MethodGet, "/v1/jobs/mine", nil, header)
	if w.Body.String() == "[]" {
		t.Fatal("owner list should include disabled job")
	}

	w = doJSON(t, r, http.MethodGet, "/v1/jobs/"+jdid, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get disabled job status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/v1/jobs/NOPE999", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get unknown job status = %d, want 404", w.Code)
	}
}
