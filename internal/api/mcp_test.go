package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/progress"
	"github.com/kalambet/skillmap/internal/retrieval"
	"github.com/kalambet/skillmap/internal/roadmap"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()

	cat := testCatalog()
	retriever := &mockRetriever{scoreFn: func(ctx context.Context, query string, topK int, threshold float64) ([]retrieval.Hit, error) {
		return []retrieval.Hit{
			{ID: "101", Title: "Belajar Dasar HTML", Type: "course", Score: 0.9},
			{ID: "102", Title: "HTML Lanjutan", Type: "course", Score: 0.7},
		}, nil
	}}

	dir := t.TempDir()
	writeRoadmapFile(t, dir)

	runtime := retrieval.NewRuntime(func(ctx context.Context) (*retrieval.Components, error) {
		return &retrieval.Components{
			Scorer: retrieval.NewScorer(
				&mockEmbedder{embedFn: func(ctx context.Context, text string) ([]float32, error) {
					return []float32{1, 0}, nil
				}},
				nil,
			),
			Catalog: cat,
		}, nil
	})

	return MCPDeps{
		Runtime:   runtime,
		Mapper:    roadmap.NewMapper(retriever, cat, nil, nil),
		Roadmaps:  catalog.NewRoadmapLoader(dir),
		Evaluator: progress.NewEvaluator(progress.PolicyTiered, progress.DefaultThresholds(), cat),
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_SkillProgress(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpSkillProgress(deps)

	req := makeCallToolRequest("skill_progress", map[string]interface{}{
		"job_role":        "Front-End Web Developer",
		"course_progress": `{"101": 100, "102": 100}`,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var out struct {
		JobRole      string                `json:"job_role"`
		SkillsStatus progress.SkillsStatus `json:"skills_status"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if out.SkillsStatus["ss-html"].Level != progress.LevelAdvanced {
		t.Fatalf("level = %q, want %q", out.SkillsStatus["ss-html"].Level, progress.LevelAdvanced)
	}
}

func TestMCPTool_SkillProgress_InvalidJSON(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpSkillProgress(deps)

	req := makeCallToolRequest("skill_progress", map[string]interface{}{
		"job_role":        "Front-End Web Developer",
		"course_progress": "{not json",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for malformed course_progress")
	}
}

func TestMCPTool_AdaptiveRoadmap_FiltersByLevel(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpAdaptiveRoadmap(deps)

	req := makeCallToolRequest("adaptive_roadmap", map[string]interface{}{
		"job_role":     "Front-End Web Developer",
		"skill_levels": `{"ss-html": "advanced"}`,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var filtered struct {
		Subskills []json.RawMessage `json:"subskills"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &filtered); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(filtered.Subskills) != 0 {
		t.Fatalf("expected advanced subskill to be filtered out, got %d", len(filtered.Subskills))
	}
}

func TestMCPTool_AdaptiveRoadmap_UnknownRole(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpAdaptiveRoadmap(deps)

	req := makeCallToolRequest("adaptive_roadmap", map[string]interface{}{
		"job_role": "Astronaut",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown role")
	}
}

func TestMCPTool_RetrieveCatalog_KBNotReady(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Runtime = retrieval.NewRuntime(func(ctx context.Context) (*retrieval.Components, error) {
		return nil, context.DeadlineExceeded
	})
	handler := mcpRetrieveCatalog(deps)

	req := makeCallToolRequest("retrieve_catalog", map[string]interface{}{
		"query": "html",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error when knowledge base is unavailable")
	}
}

func TestMCPResource_Roles(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpResourceRoles(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("roadmap://roles"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 resource content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var roles []string
	if err := json.Unmarshal([]byte(tc.Text), &roles); err != nil {
		t.Fatalf("failed to parse roles: %v", err)
	}
	if len(roles) != 1 {
		t.Fatalf("expected 1 role, got %v", roles)
	}
}

func TestNewMCPServer_Registers(t *testing.T) {
	// Construction must not panic with a full dependency set.
	s := NewMCPServer(newTestMCPDeps(t))
	if s == nil {
		t.Fatal("nil server")
	}
}
