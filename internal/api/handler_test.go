package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nl2sqlchat/nl2sqlchat/internal/auth"
	"github.com/nl2sqlchat/nl2sqlchat/internal/chat"
	"github.com/nl2sqlchat/nl2sqlchat/internal/config"
	"github.com/nl2sqlchat/nl2sqlchat/internal/nl2sql"
	"github.com/nl2sqlchat/nl2sqlchat/internal/query"
)

func TestHealthEndpoint(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "nl2sql-chat" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	h := NewHandler(cfg, Dependencies{
		Readiness: func(rctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"NL2SQL_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:alice:chat_user")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		QueryEngine:    newFakeEngine(),
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/tables", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/tables", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d, body=%s", authResp.Code, authResp.Body.String())
	}
}

func TestProtectedRouteFailsClosedWithoutMiddleware(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"NL2SQL_AUTH_REQUIRED": "true"})

	h := NewHandler(cfg, Dependencies{QueryEngine: newFakeEngine()})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/tables", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckObjectStoreConfigOnlyWhenExportEnabled(t *testing.T) {
	cfg := loadTestConfig(t, nil)
	cfg.ObjectStore.Bucket = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("disabled export check error = %v", err)
	}
	cfg.Export.Enabled = true
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
}

func TestUIHandlerServesNonAPIRoutes(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	h := NewHandler(cfg, Dependencies{
		UI: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>ok</html>")
		}),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
}

type fakeEngine struct {
	results map[string]query.Result
	err     error
	calls   []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{results: map[string]query.Result{
		"SELECT * FROM students ORDER BY id": {
			Columns: []string{"id", "name", "age", "marks", "department"},
			Rows: [][]any{
				{int64(1), "Rahul", int64(20), int64(85), "CSE"},
				{int64(4), "Sneha", int64(22), int64(88), "CSE"},
			},
		},
		"SELECT * FROM departments": {
			Columns: []string{"dept_code", "dept_name", "hod", "building"},
			Rows:    [][]any{{"CSE", "Computer Science Engineering", "Dr. Sharma", "Block A"}},
		},
		"SELECT name FROM students WHERE department = 'CSE'": {
			Columns: []string{"name"},
			Rows:    [][]any{{"Rahul"}, {"Sneha"}},
		},
	}}
}

func (f *fakeEngine) Execute(_ context.Context, req query.Request) (query.Result, error) {
	f.calls = append(f.calls, req.SQL)
	if f.err != nil {
		return query.Result{}, f.err
	}
	result, ok := f.results[req.SQL]
	if !ok {
		return query.Result{}, errors.New("no such column")
	}
	return result, nil
}

type fakeTranslator struct {
	sql string
	err error
}

func (f fakeTranslator) Translate(context.Context, nl2sql.Request) (nl2sql.Result, error) {
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{SQL: f.sql, Provider: "fake", Model: "fake"}, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, req nl2sql.SummaryRequest) (string, error) {
	return "There are " + strings.Repeat("x", len(req.Rows)) + " rows.", nil
}

type chatFixture struct {
	handler  http.Handler
	sessions *chat.Manager
	engine   *fakeEngine
}

func newChatFixture(t *testing.T, translator nl2sql.Translator, exporter ResultExporter) chatFixture {
	t.Helper()
	cfg := loadTestConfig(t, nil)
	engine := newFakeEngine()
	sessions := chat.NewManager(time.Minute, time.Minute, nil)
	t.Cleanup(sessions.Close)
	h := NewHandler(cfg, Dependencies{
		QueryEngine: engine,
		Sessions:    sessions,
		Assistant: &chat.Assistant{
			Translator:  translator,
			Summarizer:  fakeSummarizer{},
			Engine:      engine,
			StepTimeout: time.Second,
		},
		Exporter: exporter,
	})
	return chatFixture{handler: h, sessions: sessions, engine: engine}
}

func (f chatFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f chatFixture) startSession(t *testing.T) string {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("start session status = %d, body=%s", rr.Code, rr.Body.String())
	}
	id, _ := decodeBody(t, rr)["session_id"].(string)
	if id == "" {
		t.Fatal("expected session_id")
	}
	return id
}

func loadTestConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	if values == nil {
		values = map[string]string{}
	}
	if _, ok := values["NL2SQL_PROFILE"]; !ok {
		values["NL2SQL_PROFILE"] = "test"
	}
	cfg, err := config.Load("nl2sql-chat", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v, body=%s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
