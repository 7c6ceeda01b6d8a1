package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/finsight/platform/internal/analysis"
	"github.com/finsight/platform/internal/config"
	"github.com/finsight/platform/internal/document"
	"github.com/finsight/platform/internal/models"
	"github.com/finsight/platform/internal/store/redisstore"
	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type memPublisher struct {
	published []string
}

func (p *memPublisher) PublishJob(ctx context.Context, jobID string) error {
	_ = ctx
	p.published = append(p.published, jobID)
	return nil
}

func (p *memPublisher) PublishJobRetry(ctx context.Context, jobID string, delay time.Duration) error {
	_ = ctx
	_ = delay
	p.published = append(p.published, jobID)
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

var routerTestSeq int

func newTestRouter(t *testing.T) (*gin.Engine, *memPublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	routerTestSeq++
	dsn := fmt.Sprintf("file:httpapi_test_%d?mode=memory&cache=shared", routerTestSeq)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &analysis.Job{}, &analysis.UploadedFile{}, &analysis.UsageRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg := config.Load()
	cfg.UploadDir = t.TempDir()

	// unreachable redis: rate limiting and result caching fail open
	rds := redisstore.NewStore("127.0.0.1:1", "", 0)

	pub := &memPublisher{}
	repo := analysis.NewRepo(db)
	svc := analysis.NewService(repo, document.NewPDFReader(), nil, pub, nil, 3, time.Minute, time.Minute)

	return NewRouter(db, cfg, rds, svc), pub
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %q: %v", w.Body.String(), err)
	}
	return w, env
}

func registerAndLogin(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w, _ := doJSON(t, r, http.MethodPost, "/users", "", gin.H{
		"email":    "a@example.com",
		"password": "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("create user: status %d body %s", w.Code, w.Body.String())
	}

	w, env := doJSON(t, r, http.MethodPost, "/login", "", gin.H{
		"email":    "a@example.com",
		"password": "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("missing token in %s", env.Data)
	}
	return data.Token
}

func uploadDocument(t *testing.T, r *gin.Engine, token, filename, query string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write([]byte("Revenue: 100M, up 12% YoY.")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if query != "" {
		if err := mw.WriteField("query", query); err != nil {
			t.Fatalf("write query: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %q: %v", w.Body.String(), err)
	}
	return w, env
}

func TestAnalyzeFlow_SubmitThenPoll(t *testing.T) {
	r, pub := newTestRouter(t)
	token := registerAndLogin(t, r)

	w, env := uploadDocument(t, r, token, "report.txt", "What is the revenue trend?")
	if w.Code != http.StatusOK {
		t.Fatalf("analyze: status %d body %s", w.Code, w.Body.String())
	}
	var data struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.JobID == "" {
		t.Fatalf("missing job_id in %s", env.Data)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected one broker message, got %d", len(pub.published))
	}

	// submit-then-poll never sees NotFound
	w, env = doJSON(t, r, http.MethodGet, "/jobs/"+data.JobID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("poll: status %d body %s", w.Code, w.Body.String())
	}
	var poll struct {
		Job struct {
			Status   string `json:"status"`
			Progress int    `json:"progress"`
		} `json:"job"`
	}
	if err := json.Unmarshal(env.Data, &poll); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if poll.Job.Status != string(analysis.JobSubmitted) {
		t.Fatalf("expected submitted, got %q", poll.Job.Status)
	}
}

func TestAnalyze_EmptyQueryRejected(t *testing.T) {
	r, pub := newTestRouter(t)
	token := registerAndLogin(t, r)

	w, _ := uploadDocument(t, r, token, "report.txt", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if len(pub.published) != 0 {
		t.Fatalf("expected no broker message, got %d", len(pub.published))
	}
}

func TestAnalyze_RejectsUnknownExtension(t *testing.T) {
	r, _ := newTestRouter(t)
	token := registerAndLogin(t, r)

	w, _ := uploadDocument(t, r, token, "report.exe", "q")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetJob_UnknownIs404(t *testing.T) {
	r, _ := newTestRouter(t)
	token := registerAndLogin(t, r)

	w, _ := doJSON(t, r, http.MethodGet, "/jobs/01UNKNOWN00000000000000000", token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	r, _ := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/jobs/some-id", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var data struct {
		Status   string `json:"status"`
		WorkerID string `json:"worker_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if data.Status != "healthy" || data.WorkerID == "" {
		t.Fatalf("unexpected health payload: %s", env.Data)
	}
}

func TestUsageStats_RecordsRequests(t *testing.T) {
	r, _ := newTestRouter(t)
	token := registerAndLogin(t, r)

	// a couple of authenticated requests to accumulate usage
	for i := 0; i < 3; i++ {
		doJSON(t, r, http.MethodGet, "/me", token, nil)
	}

	w, env := doJSON(t, r, http.MethodGet, "/stats/usage?days=7", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: status %d body %s", w.Code, w.Body.String())
	}
	var data struct {
		PeriodDays int `json:"period_days"`
		Stats      struct {
			Requests int64 `json:"requests"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if data.PeriodDays != 7 {
		t.Fatalf("expected period 7, got %d", data.PeriodDays)
	}
	if data.Stats.Requests < 3 {
		t.Fatalf("expected at least 3 recorded requests, got %d", data.Stats.Requests)
	}
}
