package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"jobportal/internal/auth"
	"jobportal/internal/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errDeliveryTest = errors.New("smtp unavailable")

// newTestDB 为每个测试打开独立的内存库，连接池内共享同一份数据。
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	svc, err := auth.NewAuthService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentOTP struct {
	Email    string
	Phone    string
	Code     string
	UserType string
}

// fakeDispatcher 记录下发请求，可注入失败。
type fakeDispatcher struct {
	mu   sync.Mutex
	sent []sentOTP
	err  error
}

func (d *fakeDispatcher) SendOTP(_ context.Context, email, phone, code, userType string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sentOTP{Email: email, Phone: phone, Code: code, UserType: userType})
	return nil
}

func (d *fakeDispatcher) lastSent(t *testing.T) sentOTP {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		t.Fatal("no otp dispatched")
	}
	return d.sent[len(d.sent)-1]
}

// fakeEnqueuer 记录入队的异步任务。
type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

// fakeResumeStorage 在内存中模拟对象存储。
type fakeResumeStorage struct {
	uploaded map[string][]byte
	deleted  []string
}

func newFakeResumeStorage() *fakeResumeStorage {
	return &fakeResumeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeResumeStorage) UploadResume(_ context.Context, objectKey string, reader io.Reader, _ int64, _ string) error {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectKey] = b
	return nil
}

func (s *fakeResumeStorage) PresignDownload(_ context.Context, objectKey, _ string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeResumeStorage) DeleteResume(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewBuffer(b)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func bearerHeader(t *testing.T, svc *auth.AuthService, userID, email, role string) http.Header {
	t.Helper()
	token, err := svc.GenerateToken(userID, email, role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
