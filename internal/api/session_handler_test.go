package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobportal/internal/api/middleware"
	"jobportal/internal/auth"
	"jobportal/internal/database"
)

func newSessionRouter(t *testing.T, db *gorm.DB) (*gin.Engine, *auth.AuthService) {
	t.Helper()
	svc := newTestAuthService(t)
	h := NewSessionHandler(db, discardLogger())

	r := gin.New()
	authMW := middleware.AuthMiddleware(svc, nil)
	r.GET("/v1/auth/hr/login-history", authMW, middleware.RequireRole(database.UserTypeHR), h.History)
	r.GET("/v1/auth/candidate/login-history", authMW, middleware.RequireRole(database.UserTypeCandidate), h.History)
	return r, svc
}

func seedLoginAttempt(t *testing.T, db *gorm.DB, identifier, userType, status, reason string, at time.Time) {
	t.Helper()
	attempt := database.LoginAttempt{
		Identifier:    identifier,
		UserType:      userType,
		Status:        status,
		FailureReason: reason,
		IPAddress:     "10.0.0.1",
		UserAgent:     "go-test",
	}
	attempt.CreatedAt = at
	if err := db.Create(&attempt).Error; err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
}

func TestLoginHistoryReturnsOwnAttempts(t *testing.T) {
	db := newTestDB(t)
	r, svc := newSessionRouter(t, db)
	now := time.Now()

	seedLoginAttempt(t, db, "hr@gmail.com", database.UserTypeHR, database.LoginStatusFailed, "invalid password", now.Add(-2*time.Hour))
	seedLoginAttempt(t, db, "hr@gmail.com", database.UserTypeHR, database.LoginStatusSuccess, "", now.Add(-time.Hour))
	// 别人的流水和候选人侧的同名标识都不可见。
	seedLoginAttempt(t, db, "other@gmail.com", database.UserTypeHR, database.LoginStatusSuccess, "", now)
	seedLoginAttempt(t, db, "hr@gmail.com", database.UserTypeCandidate, database.LoginStatusSuccess, "", now)

	w := doJSON(t, r, http.MethodGet, "/v1/auth/hr/login-history", nil,
		bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR))
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d, body %s", w.Code, w.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("history entries = %d, want 2", len(out))
	}
	if out[0]["status"] != database.LoginStatusSuccess {
		t.Fatalf("entries not newest-first: %v", out)
	}
	if out[1]["failureReason"] != "invalid password" {
		t.Fatalf("failed entry missing reason: %v", out[1])
	}
	if _, present := out[0]["failureReason"]; present {
		t.Fatalf("success entry should omit reason: %v", out[0])
	}
}

func TestLoginHistoryLimit(t *testing.T) {
	db := newTestDB(t)
	r, svc := newSessionRouter(t, db)
	header := bearerHeader(t, svc, "HRID001", "hr@gmail.com", database.UserTypeHR)

	now := time.Now()
	for i := 0; i < 3; i++ {
		seedLoginAttempt(t, db, "hr@gmail.com", database.UserTypeHR, database.LoginStatusSuccess, "", now.Add(-time.Duration(i)*time.Minute))
	}

	w := doJSON(t, r, http.MethodGet, "/v1/auth/hr/login-history?limit=2", nil, header)
	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("limited entries = %d, want 2", len(out))
	}

	w = doJSON(t, r, http.MethodGet, "/v1/auth/hr/login-history?limit=abc", nil, header)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/v1/auth/hr/login-history?limit=0", nil, header)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("zero limit status = %d, want 400", w.Code)
	}
}

func TestLoginHistoryCoversCandidatePhoneLogins(t *testing.T) {
	db := newTestDB(t)
	r, svc := newSessionRouter(t, db)

	// 仅手机号注册的候选人：账号邮箱是合成邮箱，流水按手机号落库。
	phone := "9876543210"
	pending := database.CandidatePending{Name: "R", Phone: &phone, Verified: true}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	seedLoginAttempt(t, db, phone, database.UserTypeCandidate, database.LoginStatusSuccess, "", time.Now())

	w := doJSON(t, r, http.MethodGet, "/v1/auth/candidate/login-history", nil,
		bearerHeader(t, svc, "CID001", "phone_9876543210@jobportal.local", database.UserTypeCandidate))
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d, body %s", w.Code, w.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(out) != 1 || out[0]["identifier"] != phone {
		t.Fatalf("phone login history = %v, want one entry for %s", out, phone)
	}
}

func TestLoginHistoryRequiresAuth(t *testing.T) {
	db := newTestDB(t)
	r, _ := newSessionRouter(t, db)

	w := doJSON(t, r, http.MethodGet, "/v1/auth/hr/login-history", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated history status = %d, want 401", w.Code)
	}
}
