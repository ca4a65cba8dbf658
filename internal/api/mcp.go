package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/skillmap/internal/adaptive"
	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/progress"
	"github.com/kalambet/skillmap/internal/retrieval"
	"github.com/kalambet/skillmap/internal/roadmap"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Runtime   *retrieval.Runtime
	Mapper    *roadmap.Mapper
	Roadmaps  *catalog.RoadmapLoader
	Evaluator progress.RoadmapEvaluator
}

// NewMCPServer creates an MCP server with all skillmap tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"skillmap",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("skillmap — catalog retrieval, skill-progress grading, and adaptive roadmaps for learners."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("retrieve_catalog",
			mcp.WithDescription("Semantically search the course catalog and tutorial knowledge base."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpRetrieveCatalog(deps),
	)

	s.AddTool(
		mcp.NewTool("skill_progress",
			mcp.WithDescription("Grade a learner's skill levels for a job role from their per-course completion percentages."),
			mcp.WithString("job_role", mcp.Description("Job role, e.g. \"Front-End Web Developer\""), mcp.Required()),
			mcp.WithString("course_progress", mcp.Description("JSON object of course id or name to completion percent"), mcp.Required()),
		),
		mcpSkillProgress(deps),
	)

	s.AddTool(
		mcp.NewTool("adaptive_roadmap",
			mcp.WithDescription("Build a roadmap for a job role filtered down to what the learner still needs, given their current skill levels."),
			mcp.WithString("job_role", mcp.Description("Job role, e.g. \"Front-End Web Developer\""), mcp.Required()),
			mcp.WithString("skill_levels", mcp.Description("JSON object of subskill id to level (beginner/intermediate/advanced or platform status strings)")),
		),
		mcpAdaptiveRoadmap(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"roadmap://roles",
			"Available Job Roles",
			mcp.WithResourceDescription("Job roles with a canonical roadmap, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRoles(deps),
	)

	return s
}

func mcpRetrieveCatalog(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		topK := req.GetInt("top_k", retrieval.DefaultTopK)
		if topK <= 0 {
			topK = retrieval.DefaultTopK
		}
		if topK > 50 {
			topK = 50
		}

		comps, err := deps.Runtime.Acquire(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("knowledge base not ready: %v", err)), nil
		}
		hits, err := comps.Scorer.Score(ctx, query, topK, retrieval.DefaultThreshold)
		if err != nil {
			return mcpError(fmt.Sprintf("retrieval failed: %v", err)), nil
		}
		if len(hits) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSkillProgress(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobRole, err := req.RequireString("job_role")
		if err != nil {
			return mcpError("job_role is required"), nil
		}
		progressJSON, err := req.RequireString("course_progress")
		if err != nil {
			return mcpError("course_progress is required"), nil
		}

		var courseProgress map[string]float64
		if err := json.Unmarshal([]byte(progressJSON), &courseProgress); err != nil {
			return mcpError(fmt.Sprintf("invalid course_progress JSON: %v", err)), nil
		}

		mapped, result := mcpMappedRoadmap(ctx, deps, jobRole)
		if result != nil {
			return result, nil
		}

		status := deps.Evaluator.EvaluateRoadmap(mapped, courseProgress)
		out := map[string]any{
			"job_role":      jobRole,
			"skills_status": status,
			"summary":       progress.Summarize(status),
		}
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAdaptiveRoadmap(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobRole, err := req.RequireString("job_role")
		if err != nil {
			return mcpError("job_role is required"), nil
		}

		levels := map[string]adaptive.Level{}
		if raw := req.GetString("skill_levels", ""); raw != "" {
			var rawLevels map[string]any
			if err := json.Unmarshal([]byte(raw), &rawLevels); err != nil {
				return mcpError(fmt.Sprintf("invalid skill_levels JSON: %v", err)), nil
			}
			levels = adaptive.NormalizeLevels(rawLevels)
		}

		mapped, result := mcpMappedRoadmap(ctx, deps, jobRole)
		if result != nil {
			return result, nil
		}

		filtered := adaptive.FilterRoadmap(mapped, levels)
		b, err := json.Marshal(filtered)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal roadmap: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// mcpMappedRoadmap loads and maps the canonical roadmap for a role. The
// second return value is non-nil when the caller should return it as the
// tool result.
func mcpMappedRoadmap(ctx context.Context, deps MCPDeps, jobRole string) (catalog.CanonicalRoadmap, *mcp.CallToolResult) {
	canonical, err := deps.Roadmaps.Load(jobRole)
	if err != nil {
		if errors.Is(err, catalog.ErrRoadmapNotFound) {
			return catalog.CanonicalRoadmap{}, mcpError(fmt.Sprintf("no roadmap for role %q", jobRole))
		}
		return catalog.CanonicalRoadmap{}, mcpError(fmt.Sprintf("loading roadmap: %v", err))
	}
	mapped, err := deps.Mapper.MapRoadmap(ctx, canonical)
	if err != nil {
		return catalog.CanonicalRoadmap{}, mcpError(fmt.Sprintf("mapping roadmap: %v", err))
	}
	return mapped, nil
}

func mcpResourceRoles(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		roles, err := deps.Roadmaps.Roles()
		if err != nil {
			return nil, fmt.Errorf("failed to list roles: %w", err)
		}

		b, err := json.Marshal(roles)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal roles: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
