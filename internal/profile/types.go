package profile

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/progress"
)

// Profile is the typed read slice of a user profile. The authoritative
// representation is the raw JSON map; this struct only surfaces the fields
// the engine consumes.
type Profile struct {
	PlatformData    PlatformData
	RoadmapProgress RoadmapProgress
}

// PlatformData carries the user's activity as exported by the learning
// platform. Progress keys may be course names or ids.
type PlatformData struct {
	ActiveCourses  []string
	CourseProgress map[string]float64
}

// RoadmapProgress is the per-role roadmap state stored in the profile.
type RoadmapProgress struct {
	JobRole      string
	CreatedAt    time.Time
	LastUpdated  time.Time
	SkillsStatus progress.SkillsStatus
	Subskills    []catalog.Subskill
}

// ParseProfile extracts the typed read slice from a raw profile map. It is
// defensive: missing or malformed fields yield zero values, never errors.
func ParseProfile(raw map[string]any) Profile {
	var p Profile

	if plat, ok := raw["platform_data"].(map[string]any); ok {
		if courses, ok := plat["active_courses"].([]any); ok {
			for _, c := range courses {
				if s, ok := c.(string); ok {
					p.PlatformData.ActiveCourses = append(p.PlatformData.ActiveCourses, s)
				}
			}
		}
		if cp, ok := plat["course_progress"].(map[string]any); ok {
			p.PlatformData.CourseProgress = coerceProgress(cp)
		}
	}

	if rp, ok := raw["roadmap_progress"].(map[string]any); ok {
		if role, ok := rp["job_role"].(string); ok {
			p.RoadmapProgress.JobRole = role
		}
		p.RoadmapProgress.CreatedAt = coerceTime(rp["created_at"])
		p.RoadmapProgress.LastUpdated = coerceTime(rp["last_updated"])
		if ss, ok := rp["skills_status"].(map[string]any); ok {
			p.RoadmapProgress.SkillsStatus = coerceSkillsStatus(ss)
		}
	}

	return p
}

// coerceSkillsStatus decodes a stored skills_status map back into its typed
// form. A malformed value yields nil, which readers treat as no prior state.
func coerceSkillsStatus(raw map[string]any) progress.SkillsStatus {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out progress.SkillsStatus
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// coerceProgress converts raw progress values to floats. Malformed values
// are coerced to 0 rather than rejected.
func coerceProgress(raw map[string]any) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		switch n := v.(type) {
		case float64:
			out[key] = n
		case int:
			out[key] = float64(n)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				out[key] = 0
				continue
			}
			out[key] = f
		default:
			out[key] = 0
		}
	}
	return out
}

func coerceTime(raw any) time.Time {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// InitializeRoadmapProgress builds the empty roadmap state for a user who
// has just picked a role: every subskill starts as not_started.
func InitializeRoadmapProgress(roadmap catalog.CanonicalRoadmap, now time.Time) RoadmapProgress {
	status := make(progress.SkillsStatus, len(roadmap.Subskills))
	for _, sub := range roadmap.Subskills {
		status[sub.ID] = progress.SkillStatus{
			Name:       sub.Name,
			Level:      progress.LevelNotStarted,
			Status:     progress.StatusNotStarted,
			AssessedAt: now.UTC(),
		}
	}
	return RoadmapProgress{
		JobRole:      roadmap.JobRole,
		CreatedAt:    now.UTC(),
		LastUpdated:  now.UTC(),
		SkillsStatus: status,
	}
}
