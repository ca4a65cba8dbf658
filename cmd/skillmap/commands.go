package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/skillmap/internal/config"
)

// --- retrieve ---

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Semantic search over the course catalog and tutorials",
	Long: `Semantic search over the course catalog and tutorials.

Examples:
  skillmap retrieve "dasar javascript"
  skillmap retrieve "state management" --top-k 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topK, _ := cmd.Flags().GetInt("top-k")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"query": args[0]}
		if topK > 0 {
			req["top_k"] = topK
		}
		resp, err := client.post("/retrieve", req)
		if err != nil {
			return err
		}

		var result struct {
			Hits []struct {
				ID    string  `json:"id"`
				Title string  `json:"title"`
				Type  string  `json:"type"`
				Score float64 `json:"score"`
			} `json:"hits"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Hits) == 0 {
			printWarning("No results above the score threshold")
			return nil
		}
		for i, h := range result.Hits {
			fmt.Printf("%2d. [%.3f] %s (%s, id=%s)\n", i+1, h.Score, h.Title, h.Type, h.ID)
		}
		return nil
	},
}

func init() {
	retrieveCmd.Flags().Int("top-k", 0, "maximum number of results")
}

// --- roadmap ---

var roadmapCmd = &cobra.Command{
	Use:   "roadmap",
	Short: "Inspect and evaluate job-role roadmaps",
}

var roadmapRolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List job roles with a canonical roadmap",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/roadmap/roles")
		if err != nil {
			return err
		}

		var result struct {
			Roles []string `json:"roles"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		for _, role := range result.Roles {
			fmt.Println(role)
		}
		return nil
	},
}

var roadmapShowCmd = &cobra.Command{
	Use:   "show <job-role>",
	Short: "Show the mapped roadmap for a job role as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/roadmap/" + urlPathEscape(args[0]))
		if err != nil {
			return err
		}

		var roadmap any
		if err := decodeJSON(resp, &roadmap); err != nil {
			return err
		}
		return printJSON(roadmap)
	},
}

var roadmapEvaluateCmd = &cobra.Command{
	Use:   "evaluate <user-id>",
	Short: "Evaluate a user's skill progress and print the adaptive roadmap",
	Long: `Evaluate a user's skill progress and print the adaptive roadmap.

Course progress comes from --progress (a JSON object of course id or name
to completion percent) or, when omitted, from the user's stored profile.

Examples:
  skillmap roadmap evaluate user-1 --role "Front-End Web Developer" --progress '{"101": 80}'
  skillmap roadmap evaluate user-1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		progressJSON, _ := cmd.Flags().GetString("progress")

		req := map[string]any{"user_id": args[0]}
		if role != "" {
			req["job_role"] = role
		}
		if progressJSON != "" {
			var progress map[string]float64
			if err := json.Unmarshal([]byte(progressJSON), &progress); err != nil {
				return fmt.Errorf("invalid --progress JSON: %w", err)
			}
			req["course_progress"] = progress
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/roadmap/evaluate", req)
		if err != nil {
			return err
		}

		var result struct {
			JobRole string `json:"job_role"`
			Summary struct {
				Assessed   int     `json:"assessed"`
				Total      int     `json:"total"`
				Percentage float64 `json:"percentage"`
			} `json:"summary"`
			SkillsStatus map[string]struct {
				Name           string  `json:"name"`
				Level          string  `json:"level"`
				OverallPercent float64 `json:"overall_percent"`
				Status         string  `json:"status"`
			} `json:"skills_status"`
			NextSteps map[string]string `json:"next_steps"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Job role", "%s", result.JobRole)
		printStatus("Assessed", "%d/%d (%.1f%%)", result.Summary.Assessed, result.Summary.Total, result.Summary.Percentage)
		for id, s := range result.SkillsStatus {
			fmt.Printf("  %s: %s (%.1f%%, %s)\n", id, s.Level, s.OverallPercent, s.Status)
			if step, ok := result.NextSteps[id]; ok && step != "" {
				fmt.Printf("    → %s\n", step)
			}
		}
		return nil
	},
}

func init() {
	roadmapEvaluateCmd.Flags().String("role", "", "job role (inferred from active courses when omitted)")
	roadmapEvaluateCmd.Flags().String("progress", "", "course progress as a JSON object")

	roadmapCmd.AddCommand(roadmapRolesCmd)
	roadmapCmd.AddCommand(roadmapShowCmd)
	roadmapCmd.AddCommand(roadmapEvaluateCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage user profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/profile/" + urlPathEscape(args[0]))
		if err != nil {
			return err
		}

		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		return printJSON(profile)
	},
}

var profilePatchCmd = &cobra.Command{
	Use:   "patch <user-id> <json>",
	Short: "Deep-merge a JSON patch into a user profile",
	Long: `Deep-merge a JSON patch into a user profile.

Example:
  skillmap profile patch user-1 '{"platform_data": {"course_progress": {"101": 75}}}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch map[string]any
		if err := json.Unmarshal([]byte(args[1]), &patch); err != nil {
			return fmt.Errorf("invalid patch JSON: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch("/profile/"+urlPathEscape(args[0]), patch)
		if err != nil {
			return err
		}

		var merged any
		if err := decodeJSON(resp, &merged); err != nil {
			return err
		}
		printSuccess("Profile updated")
		return printJSON(merged)
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profilePatchCmd)
}

// --- kb ---

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
}

var kbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge base status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/kb/status")
		if err != nil {
			return err
		}

		var status struct {
			Ready   bool `json:"ready"`
			Records int  `json:"records"`
		}
		if err := decodeJSON(resp, &status); err != nil {
			return err
		}
		if status.Ready {
			printStatus("Knowledge base", "%d records", status.Records)
		} else {
			printStatus("Knowledge base", "not built yet")
		}
		return nil
	},
}

var kbBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Rebuild the knowledge base from the catalog and docs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Rebuilding knowledge base...")
		resp, err := client.post("/kb/rebuild", nil)
		if err != nil {
			return err
		}

		var result struct {
			Records int `json:"records"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Indexed %d records", result.Records)
		return nil
	},
}

func init() {
	kbCmd.AddCommand(kbStatusCmd)
	kbCmd.AddCommand(kbBuildCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

// --- helpers ---

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func urlPathEscape(s string) string {
	return url.PathEscape(s)
}
