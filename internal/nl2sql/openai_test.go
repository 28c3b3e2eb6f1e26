package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestStripMarkdownSQL(t *testing.T) {
	got := stripMarkdownSQL("```sql\nSELECT 1;\n```")
	if got != "SELECT 1;" {
		t.Fatalf("stripMarkdownSQL() = %q", got)
	}
}

func TestNewOpenAIClientValidatesConfig(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "https://api.example.com/v1"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestTranslateSendsSchemaPromptWithZeroTemperature(t *testing.T) {
	srv, calls := newCompletionServer(t, "```sql\nSELECT name FROM students WHERE department = 'CSE'\n```")
	client := newTestClient(t, srv.URL)

	result, err := client.Translate(context.Background(), Request{
		Question: "list all students in CSE",
		Schema:   "Table: students",
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT name FROM students WHERE department = 'CSE'" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Model != "test-model" {
		t.Fatalf("Model = %q", result.Model)
	}

	got := calls.all()
	if len(got) != 1 {
		t.Fatalf("calls = %d", len(got))
	}
	if got[0].Model != "test-model" {
		t.Fatalf("request model = %q", got[0].Model)
	}
	if got[0].Temperature == nil || *got[0].Temperature != 0 {
		t.Fatalf("temperature = %v, want 0", got[0].Temperature)
	}
	if len(got[0].Messages) != 2 || got[0].Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", got[0].Messages)
	}
	if !strings.Contains(got[0].Messages[0].Content, "Table: students") {
		t.Fatalf("system prompt missing schema: %q", got[0].Messages[0].Content)
	}
	if got[0].Messages[1].Content != "list all students in CSE" {
		t.Fatalf("user prompt = %q", got[0].Messages[1].Content)
	}
}

func TestTranslateRejectsEmptyCompletion(t *testing.T) {
	srv, _ := newCompletionServer(t, "   ")
	client := newTestClient(t, srv.URL)

	_, err := client.Translate(context.Background(), Request{Question: "q"})
	if err != ErrEmptySQL {
		t.Fatalf("Translate() error = %v, want ErrEmptySQL", err)
	}
}

func TestTranslateReturnsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL)

	if _, err := client.Translate(context.Background(), Request{Question: "q"}); err == nil {
		t.Fatal("expected upstream error")
	}
}

func TestSummarizeShortCircuitsEmptyResult(t *testing.T) {
	srv, calls := newCompletionServer(t, "unused")
	client := newTestClient(t, srv.URL)

	summary, err := client.Summarize(context.Background(), SummaryRequest{
		Question: "students in physics",
		Columns:  []string{"name"},
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != NoDataSummary {
		t.Fatalf("summary = %q", summary)
	}
	if n := len(calls.all()); n != 0 {
		t.Fatalf("calls = %d, want 0", n)
	}
}

func TestSummarizeSendsRenderedResult(t *testing.T) {
	srv, calls := newCompletionServer(t, "Two students, Rahul and Sneha, are in CSE.")
	client := newTestClient(t, srv.URL)

	summary, err := client.Summarize(context.Background(), SummaryRequest{
		Question: "list all students in CSE",
		Columns:  []string{"name", "department"},
		Rows:     [][]any{{"Rahul", "CSE"}, {"Sneha", "CSE"}},
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "Two students, Rahul and Sneha, are in CSE." {
		t.Fatalf("summary = %q", summary)
	}
	got := calls.all()
	if len(got) != 1 {
		t.Fatalf("calls = %d", len(got))
	}
	if got[0].Temperature == nil || *got[0].Temperature != 0.2 {
		t.Fatalf("temperature = %v, want 0.2", got[0].Temperature)
	}
	user := got[0].Messages[1].Content
	if !strings.HasPrefix(user, "Question: list all students in CSE") || !strings.Contains(user, "Sneha") {
		t.Fatalf("summary prompt = %q", user)
	}
}

type completionCall struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type callLog struct {
	mu    sync.Mutex
	calls []completionCall
}

func (l *callLog) all() []completionCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]completionCall(nil), l.calls...)
}

func newCompletionServer(t *testing.T, content string) (*httptest.Server, *callLog) {
	t.Helper()
	log := &callLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var call completionCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.mu.Lock()
		log.calls = append(log.calls, call)
		log.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   call.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func newTestClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:            baseURL + "/v1",
		APIKey:             "test-key",
		Model:              "test-model",
		SQLTemperature:     0,
		SummaryTemperature: 0.2,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	return client
}
