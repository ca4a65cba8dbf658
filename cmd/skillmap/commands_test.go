package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
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

func TestRetrieveRequest_SendsQueryAndAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /retrieve": `{"hits":[{"id":"101","title":"Belajar Dasar HTML","type":"course","score":0.82}]}`,
	})
	client := ts.client()

	resp, err := client.post("/retrieve", map[string]any{"query": "html dasar", "top_k": 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Hits []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"hits"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(result.Hits) != 1 || result.Hits[0].ID != "101" {
		t.Errorf("hits = %+v", result.Hits)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["query"] != "html dasar" {
		t.Errorf("body.query = %v", body["query"])
	}
	if body["top_k"] != float64(5) {
		t.Errorf("body.top_k = %v", body["top_k"])
	}
}

func TestEvaluateRequest_RoundTrip(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /roadmap/evaluate": `{
			"user_id": "user-1",
			"job_role": "Front-End Web Developer",
			"skills_status": {"ss-html": {"name": "HTML Dasar", "level": "Beginner", "overall_percent": 12.5, "status": "in_progress"}},
			"summary": {"assessed": 1, "total": 3, "percentage": 33.33, "complete": false}
		}`,
	})
	client := ts.client()

	resp, err := client.post("/roadmap/evaluate", map[string]any{
		"user_id":         "user-1",
		"job_role":        "Front-End Web Developer",
		"course_progress": map[string]float64{"101": 12.5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		JobRole string `json:"job_role"`
		Summary struct {
			Assessed int `json:"assessed"`
			Total    int `json:"total"`
		} `json:"summary"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.JobRole != "Front-End Web Developer" {
		t.Errorf("job_role = %q", result.JobRole)
	}
	if result.Summary.Assessed != 1 || result.Summary.Total != 3 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestProfilePatch_EscapesUserID(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /profile/user with space": `{"platform_data":{}}`,
	})
	client := ts.client()

	resp, err := client.patch("/profile/"+urlPathEscape("user with space"), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body any
	if err := decodeJSON(resp, &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if got := ts.requests[0].Path; got != "/profile/user%20with%20space" {
		t.Errorf("path = %q", got)
	}
}

func TestDecodeJSON_ServerError(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	client := ts.client()

	resp, err := client.get("/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want mention of status 404", err)
	}
}

func TestRoadmapEvaluate_RejectsBadProgressFlag(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"roadmap", "evaluate", "user-1", "--progress", "{not json"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for malformed --progress")
	}
	if !strings.Contains(err.Error(), "--progress") {
		t.Errorf("error = %v, want mention of --progress", err)
	}
}

func TestRetrieveCommand_RequiresQuery(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"retrieve"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error when query argument is missing")
	}
}
