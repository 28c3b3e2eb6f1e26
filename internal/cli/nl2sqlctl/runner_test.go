package nl2sqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRunHealthCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"health",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/health" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key header = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunReadyReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error_code":"NOT_READY"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-no-color", "ready"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "http 503") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunTablesRendersBothPreviews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tables" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"tables":[
			{"name":"students","columns":["id","name"],"rows":[[1,"Rahul"],[2,"Anita"]]},
			{"name":"departments","columns":["dept_code","hod"],"rows":[["CSE",null]]}
		]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-no-color", "tables"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	out := stdout.String()
	for _, want := range []string{"students", "departments", "Rahul", "Anita", "CSE", "NULL"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunAskCreatesAsksAndEndsSession(t *testing.T) {
	api := newFakeChatAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL, "-no-color",
		"ask", "Show", "students", "from", "CSE",
	}, Options{Stdout: &stdout, Stderr: &stderr})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}

	if got := api.questionsAsked(); len(got) != 1 || got[0] != "Show students from CSE" {
		t.Fatalf("questions = %q", got)
	}
	if !api.ended("s-1") {
		t.Fatal("session was not ended")
	}
	out := stdout.String()
	for _, want := range []string{"SELECT name FROM students", "Rahul", "Two students."} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunAskReportsAPIError(t *testing.T) {
	api := newFakeChatAPI()
	api.failWith = `{"error_code":"MALFORMED_SQL","message":"the generated query was rejected"}`
	srv := httptest.NewServer(api)
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-no-color", "ask", "drop everything"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "MALFORMED_SQL: the generated query was rejected") {
		t.Fatalf("stderr = %q", stderr.String())
	}
	if !api.ended("s-1") {
		t.Fatal("session was not ended after failure")
	}
}

func TestRunChatKeepsOneSession(t *testing.T) {
	api := newFakeChatAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-no-color", "chat"}, Options{
		Stdin:  strings.NewReader("first question\n\nsecond question\nexit\nnever asked\n"),
		Stdout: &stdout,
	})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	got := api.questionsAsked()
	if len(got) != 2 || got[0] != "first question" || got[1] != "second question" {
		t.Fatalf("questions = %q", got)
	}
	if api.sessionsStarted() != 1 {
		t.Fatalf("sessions started = %d, want 1", api.sessionsStarted())
	}
	if !api.ended("s-1") {
		t.Fatal("session was not ended")
	}
}

func TestRunRejectsUsageErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"unknown"},
		{"ask"},
		{"-bogus-flag", "health"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
			t.Fatalf("Run(%q) exit code = %d, want 2", args, code)
		}
	}
}

type fakeChatAPI struct {
	mu        sync.Mutex
	started   int
	questions []string
	endedIDs  map[string]bool
	failWith  string
}

func newFakeChatAPI() *fakeChatAPI {
	return &fakeChatAPI{endedIDs: map[string]bool{}}
}

func (f *fakeChatAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions":
		f.started++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"session_id":"s-1","turns":[]}`))
	case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions/s-1/ask":
		var req struct {
			Question string `json:"question"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.questions = append(f.questions, req.Question)
		if f.failWith != "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(f.failWith))
			return
		}
		_, _ = w.Write([]byte(`{"session_id":"s-1","answer":{
			"role":"assistant",
			"sql":"SELECT name FROM students WHERE department = 'CSE'",
			"columns":["name"],
			"rows":[["Rahul"],["Sneha"]],
			"summary":"Two students."
		}}`))
	case r.Method == http.MethodDelete && r.URL.Path == "/v1/sessions/s-1":
		f.endedIDs["s-1"] = true
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeChatAPI) questionsAsked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.questions...)
}

func (f *fakeChatAPI) sessionsStarted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeChatAPI) ended(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endedIDs[id]
}
