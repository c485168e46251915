package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kessl/chored/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestTaskAdd(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /users/alice/tasks": `{"id":"11112222-0000-0000-0000-000000000000","owner":"alice","title":"Water the plants","kind":"daily","time":"09:00","completions":[]}`,
	})

	client := ts.client()

	req := map[string]any{
		"title": "Water the plants",
		"kind":  "daily",
		"time":  "09:00",
	}
	resp, err := client.post(ctx, "/users/alice/tasks", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var task taskView
	if err := decodeJSON(resp, &task); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if task.Title != "Water the plants" {
		t.Errorf("title = %q, want Water the plants", task.Title)
	}
	if task.Kind != "daily" {
		t.Errorf("kind = %q, want daily", task.Kind)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["title"] != "Water the plants" {
		t.Errorf("body.title = %v, want Water the plants", body["title"])
	}
}

func TestTaskListFilterEncoded(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /users/alice/tasks": `[]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/users/alice/tasks?filter=actionable")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if !strings.Contains(ts.requests[0].Path, "filter=actionable") {
		t.Errorf("path = %q, want filter=actionable", ts.requests[0].Path)
	}
}

func TestTaskToggle(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /users/alice/tasks/abc/toggle": `{"status":"completed"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/users/alice/tasks/abc/toggle", map[string]string{"actor": "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "completed" {
		t.Errorf("status = %q, want completed", result["status"])
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["actor"] != "bob" {
		t.Errorf("body.actor = %q, want bob", body["actor"])
	}
}

func TestTaskEditNothingToChange(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"task", "edit", "alice", "abc123"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error when no edit flags are given")
	}
	if !strings.Contains(err.Error(), "nothing to change") {
		t.Errorf("error = %q, want it to mention 'nothing to change'", err.Error())
	}
}

func TestHistoryCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /history": `[{"task_id":"t1","title":"Dishes","status":"completed","timestamp":"2025-06-02T18:00:00Z","user":"alice"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/history?limit=50&offset=0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var entries []historyView
	if err := decodeJSON(resp, &entries); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Actor != "alice" {
		t.Errorf("actor = %q, want alice", entries[0].Actor)
	}
	if entries[0].Status != "completed" {
		t.Errorf("status = %q, want completed", entries[0].Status)
	}
}

func TestSweepCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sweep": `{"incomplete_logged":3}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/sweep", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]int
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["incomplete_logged"] != 3 {
		t.Errorf("incomplete_logged = %d, want 3", result["incomplete_logged"])
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	_, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/users")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4600
	cfg.Sweep.Time = "07:00"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "sweep.time" && k.Value == "07:00" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find sweep.time=07:00 in ShowAll output")
	}
}
