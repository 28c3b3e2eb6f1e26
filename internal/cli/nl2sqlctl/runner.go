package nl2sqlctl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/nl2sqlchat/nl2sqlchat/internal/nl2sql"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	NoColor    bool
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

type tablePreview struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type turn struct {
	Index     int      `json:"index"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	SQL       string   `json:"sql"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
	Summary   string   `json:"summary"`
}

type apiError struct {
	Status  int
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type printer struct {
	out     io.Writer
	heading *color.Color
	sql     *color.Color
	summary *color.Color
	failure *color.Color
}

func newPrinter(out io.Writer, noColor bool) *printer {
	p := &printer{
		out:     out,
		heading: color.New(color.Bold),
		sql:     color.New(color.FgCyan),
		summary: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
	}
	if noColor {
		for _, c := range []*color.Color{p.heading, p.sql, p.summary, p.failure} {
			c.DisableColor()
		}
	}
	return p
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	fs := flag.NewFlagSet("nl2sqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "NL2SQL chat API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")
	noColor := fs.Bool("no-color", defaults.NoColor, "Disable colored output")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	httpClient := defaults.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: *timeout}
	}
	c := &client{http: httpClient, baseURL: strings.TrimRight(*baseURL, "/"), apiKey: strings.TrimSpace(*apiKey)}
	out := newPrinter(stdout, *noColor)
	errOut := newPrinter(stderr, *noColor)

	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "health", "ready":
		return runStatus(ctx, c, "/v1/"+command, stdout, errOut)
	case "tables":
		return runTables(ctx, c, out, errOut)
	case "ask":
		question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			writeUsage(stderr)
			return 2
		}
		return runAsk(ctx, c, question, out, errOut)
	case "chat":
		return runChat(ctx, c, stdin, out, errOut)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

func runStatus(ctx context.Context, c *client, path string, stdout io.Writer, errOut *printer) int {
	code, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		errOut.failure.Fprintf(errOut.out, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		errOut.failure.Fprintf(errOut.out, "http %d: %s\n", code, strings.TrimSpace(string(body)))
		return 1
	}
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(stdout, string(body))
	}
	return 0
}

func runTables(ctx context.Context, c *client, out, errOut *printer) int {
	var payload struct {
		Tables []tablePreview `json:"tables"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/tables", nil, &payload); err != nil {
		errOut.failure.Fprintf(errOut.out, "list tables: %v\n", err)
		return 1
	}
	for i, table := range payload.Tables {
		if i > 0 {
			_, _ = fmt.Fprintln(out.out)
		}
		out.heading.Fprintln(out.out, table.Name)
		renderTable(out.out, table.Columns, table.Rows)
	}
	return 0
}

func runAsk(ctx context.Context, c *client, question string, out, errOut *printer) int {
	sessionID, err := c.startSession(ctx)
	if err != nil {
		errOut.failure.Fprintf(errOut.out, "start session: %v\n", err)
		return 1
	}
	defer c.endSession(context.WithoutCancel(ctx), sessionID)

	answer, err := c.ask(ctx, sessionID, question)
	if err != nil {
		errOut.failure.Fprintf(errOut.out, "%v\n", err)
		return 1
	}
	printAnswer(out, answer)
	return 0
}

func runChat(ctx context.Context, c *client, stdin io.Reader, out, errOut *printer) int {
	sessionID, err := c.startSession(ctx)
	if err != nil {
		errOut.failure.Fprintf(errOut.out, "start session: %v\n", err)
		return 1
	}
	defer c.endSession(context.WithoutCancel(ctx), sessionID)

	out.heading.Fprintln(out.out, "Ask about students and departments. Type \"exit\" to quit.")
	scanner := bufio.NewScanner(stdin)
	for {
		_, _ = fmt.Fprint(out.out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out.out)
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}
		answer, err := c.ask(ctx, sessionID, question)
		if err != nil {
			errOut.failure.Fprintf(errOut.out, "%v\n", err)
			continue
		}
		printAnswer(out, answer)
	}
	if err := scanner.Err(); err != nil {
		errOut.failure.Fprintf(errOut.out, "read input: %v\n", err)
		return 1
	}
	return 0
}

func printAnswer(out *printer, answer turn) {
	out.heading.Fprintln(out.out, "SQL:")
	out.sql.Fprintln(out.out, answer.SQL)
	if len(answer.Rows) > 0 {
		renderTable(out.out, answer.Columns, answer.Rows)
	}
	if answer.Truncated {
		_, _ = fmt.Fprintln(out.out, "(result truncated)")
	}
	out.summary.Fprintln(out.out, answer.Summary)
}

func renderTable(w io.Writer, columns []string, rows [][]any) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, row := range rows {
		table.Append(nl2sql.FormatRow(row))
	}
	table.Render()
}

type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func (c *client) startSession(ctx context.Context) (string, error) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/sessions", nil, &payload); err != nil {
		return "", err
	}
	if payload.SessionID == "" {
		return "", fmt.Errorf("server returned no session id")
	}
	return payload.SessionID, nil
}

func (c *client) endSession(ctx context.Context, sessionID string) {
	_, _, _ = c.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil)
}

func (c *client) ask(ctx context.Context, sessionID, question string) (turn, error) {
	var payload struct {
		Answer turn `json:"answer"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/ask", map[string]string{"question": question}, &payload); err != nil {
		return turn{}, err
	}
	return payload.Answer, nil
}

// call sends a JSON request and decodes a JSON response; error statuses
// come back as *apiError.
func (c *client) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = encoded
	}
	code, responseBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if code >= 400 {
		apiErr := &apiError{Status: code}
		if json.Unmarshal(responseBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(responseBody))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: nl2sqlctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health            GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready             GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  tables            show the students and departments tables")
	_, _ = fmt.Fprintln(w, "  ask <question>    ask one question in a fresh session")
	_, _ = fmt.Fprintln(w, "  chat              interactive session reading questions from stdin")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
