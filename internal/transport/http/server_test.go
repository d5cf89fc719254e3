package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"docqa/internal/app"
	"docqa/internal/cache"
	"docqa/internal/config"
	"docqa/internal/metrics"
	"docqa/internal/ner"
	"docqa/internal/qa"
	"docqa/internal/rag"
	"docqa/internal/repository"
	httptransport "docqa/internal/transport/http"
	"docqa/internal/transport/http/handler"
	"docqa/internal/transport/http/response"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	token  string
}

func newTestServer(t *testing.T, mutate func(*config.Config), deps ...handler.Dependency) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.App.GinMode = gin.TestMode
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := repository.NewMemoryStore()
	mgr := cache.NewManager(cache.NewMemoryBackend(), 0, 0, m, logger)
	engine, err := rag.NewEngine(rag.NewHashEmbedder(0), mgr, rag.DefaultOptions(), m, logger)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	answerer, err := qa.NewAnswerer(qa.NewLexicalExtractor(), engine, qa.DefaultOptions(), logger)
	if err != nil {
		t.Fatalf("NewAnswerer() error = %v", err)
	}
	recognizer := ner.NewPatternRecognizer()

	router, stop := httptransport.NewRouter(httptransport.Deps{
		Config:    cfg,
		Documents: app.NewDocumentService(store, engine, mgr, nil, app.DocumentServiceConfig{MaxFileBytes: 1 << 10}, m, logger),
		QA:        app.NewQAService(store, answerer, engine, mgr, recognizer, app.QAServiceConfig{}, m, logger),
		Cache:     mgr,
		Info: handler.ServiceInfo{
			Name:           "docqa",
			Version:        "test",
			StartedAt:      time.Now(),
			QAModel:        "lexical",
			NERModel:       "pattern",
			EmbeddingModel: "hashing-384",
			RAGEnabled:     true,
		},
		Dependencies: deps,
		Metrics:      m,
		Gatherer:     reg,
		Logger:       logger,
	})
	t.Cleanup(stop)

	s := &testServer{router: router}
	rec := s.do(t, http.MethodPost, "/api/v1/token", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d body=%s", rec.Code, rec.Body.String())
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil || tok.AccessToken == "" || tok.TokenType != "bearer" {
		t.Fatalf("token response = %s (%v)", rec.Body.String(), err)
	}
	s.token = tok.AccessToken
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(t *testing.T, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return s.do(t, http.MethodPost, path, bytes.NewReader(b), "application/json")
}

func (s *testServer) upload(t *testing.T, sessionID string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if sessionID != "" {
		if err := w.WriteField("session_id", sessionID); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return s.do(t, http.MethodPost, "/api/v1/upload", &buf, w.FormDataContentType())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, rec.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func TestHealthzReportsDependencies(t *testing.T) {
	t.Parallel()

	ok := newTestServer(t, nil, handler.Dependency{Name: "cache", Ping: func(context.Context) error { return nil }})
	rec := ok.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("X-Process-Time") == "" || rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing timing or request id headers: %v", rec.Header())
	}

	down := newTestServer(t, nil, handler.Dependency{Name: "mysql", Ping: func(context.Context) error { return errors.New("refused") }})
	rec = down.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "refused") {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			if env := decode(t, rec, nil); env.Code != response.CodeUnauthorized {
				t.Errorf("code = %d", env.Code)
			}
		})
	}
}

func TestUploadAskAndDeleteFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := s.upload(t, "", map[string]string{
		"contract.txt": "The contract amount is $50,000, payable within 30 days.",
		"notes.exe":    "MZ",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d body=%s", rec.Code, rec.Body.String())
	}
	var up app.UploadResult
	decode(t, rec, &up)
	if up.SessionID == "" || up.DocumentsUploaded != 1 || !up.Indexed || len(up.Documents) != 2 {
		t.Fatalf("upload = %+v", up)
	}
	sid := up.SessionID

	rec = s.postJSON(t, "/api/v1/ask", map[string]any{"session_id": sid, "question": "What is the contract amount?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("ask status = %d body=%s", rec.Code, rec.Body.String())
	}
	var ans app.AskResult
	decode(t, rec, &ans)
	if !strings.Contains(ans.Answer, "$50,000") || len(ans.Entities) == 0 {
		t.Fatalf("ask = %+v", ans)
	}

	rec = s.postJSON(t, "/api/v1/ask", map[string]any{"session_id": sid, "question": "What is the contract amount again?", "highlight_entities": false})
	decode(t, rec, &ans)
	if ans.Entities != nil {
		t.Errorf("entities = %+v, want none when highlighting is off", ans.Entities)
	}

	rec = s.postJSON(t, "/api/v1/ask-detailed", map[string]any{"session_id": sid, "question": "What is the contract amount?"})
	var detailed app.DetailedResult
	decode(t, rec, &detailed)
	var contractID string
	for _, d := range up.Documents {
		if d.Status == app.UploadStatusSuccess {
			contractID = d.DocID
		}
	}
	if rec.Code != http.StatusOK || len(detailed.Answers) != 1 || detailed.BestAnswer.DocID != contractID {
		t.Fatalf("ask-detailed status=%d result=%+v", rec.Code, detailed)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/rag/"+sid+"/stats", nil, "")
	var stats rag.Stats
	decode(t, rec, &stats)
	if rec.Code != http.StatusOK || stats.Documents != 1 || stats.Chunks == 0 {
		t.Fatalf("stats status=%d %+v", rec.Code, stats)
	}

	rec = s.postJSON(t, "/api/v1/rag/"+sid+"/search", map[string]any{"query": "contract amount", "top_k": 2})
	var search app.SearchResult
	decode(t, rec, &search)
	if rec.Code != http.StatusOK || len(search.Results) != 1 || search.Results[0].Rank != 1 {
		t.Fatalf("search status=%d %+v", rec.Code, search)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/count", nil, "")
	var count app.SessionCount
	decode(t, rec, &count)
	if count.ActiveSessions != 1 || len(count.Sessions) != 1 || count.Sessions[0] != sid {
		t.Fatalf("count = %+v", count)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/session/"+sid, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/session/"+sid, nil, "")
	if env := decode(t, rec, nil); rec.Code != http.StatusNotFound || env.Code != response.CodeSessionNotFound {
		t.Fatalf("get after delete status=%d code=%d", rec.Code, env.Code)
	}
}

func TestAskErrorMapping(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/session", nil, "")
	var created struct {
		SessionID string `json:"session_id"`
	}
	decode(t, rec, &created)
	if created.SessionID == "" {
		t.Fatalf("create session body=%s", rec.Body.String())
	}

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   int
	}{
		{"missing question", map[string]any{"session_id": created.SessionID}, http.StatusBadRequest, response.CodeBadRequest},
		{"question too long", map[string]any{"session_id": created.SessionID, "question": strings.Repeat("a", 1001)}, http.StatusBadRequest, response.CodeQuestionTooLong},
		{"unknown session", map[string]any{"session_id": "missing", "question": "q"}, http.StatusNotFound, response.CodeSessionNotFound},
		{"unknown document", map[string]any{"session_id": created.SessionID, "question": "q", "doc_id": "nope"}, http.StatusNotFound, response.CodeDocumentNotFound},
		{"negative context", map[string]any{"session_id": created.SessionID, "question": "q", "max_context_length": -5}, http.StatusBadRequest, response.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.postJSON(t, "/api/v1/ask", tt.body)
			env := decode(t, rec, nil)
			if rec.Code != tt.wantStatus || env.Code != tt.wantCode {
				t.Fatalf("status=%d code=%d, want %d/%d (%s)", rec.Code, env.Code, tt.wantStatus, tt.wantCode, env.Message)
			}
		})
	}

	rec = s.do(t, http.MethodGet, "/api/v1/rag/"+created.SessionID+"/stats", nil, "")
	if env := decode(t, rec, nil); rec.Code != http.StatusNotFound || env.Code != response.CodeIndexNotFound {
		t.Fatalf("stats on empty session status=%d code=%d", rec.Code, env.Code)
	}
}

func TestUploadRejectsOversizedRequest(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *config.Config) { c.Upload.MaxRequestSizeMB = 1 })

	rec := s.upload(t, "", map[string]string{"big.txt": strings.Repeat("x", 2<<20)})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
	if env := decode(t, rec, nil); env.Code != response.CodePayloadTooLarge {
		t.Errorf("code = %d", env.Code)
	}
}

func TestRateLimitedRoute(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *config.Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.SessionPerMinute = 2
	})

	for i := 0; i < 2; i++ {
		if rec := s.do(t, http.MethodPost, "/api/v1/session", nil, ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := s.do(t, http.MethodPost, "/api/v1/session", nil, "")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d headers=%v", rec.Code, rec.Header())
	}
	if env := decode(t, rec, nil); env.Code != response.CodeTooManyRequests {
		t.Errorf("code = %d", env.Code)
	}
}

func TestMonitoringEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/health/detailed", nil, "")
	var health struct {
		Status     string `json:"status"`
		Components struct {
			Cache struct {
				Type      string `json:"type"`
				Connected bool   `json:"connected"`
			} `json:"cache"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" || health.Components.Cache.Type != "in-memory" || !health.Components.Cache.Connected {
		t.Fatalf("health = %+v", health)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/models/status", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ner.LabelMoney) {
		t.Fatalf("models status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/cache/stats", nil, "")
	var stats cache.Stats
	decode(t, rec, &stats)
	if stats.Type != "in-memory" {
		t.Fatalf("cache stats = %+v", stats)
	}

	s.do(t, http.MethodGet, "/healthz", nil, "")
	rec = s.do(t, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "docqa_http_requests_total") {
		t.Fatalf("metrics status=%d", rec.Code)
	}
}
