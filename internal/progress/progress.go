package progress

import (
	"math"
	"time"

	"github.com/kalambet/skillmap/internal/catalog"
)

// Skill levels, in ascending order of mastery.
const (
	LevelNotStarted   = "not_started"
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"
)

// Completion statuses, derived independently of level.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Evaluation policies.
const (
	PolicyTiered = "tiered"
	PolicyFlat   = "flat"
)

// Thresholds configure the tiered level decision. A tier average at or
// above its threshold qualifies the subskill for that level.
type Thresholds struct {
	Advanced     float64
	Intermediate float64
	Beginner     float64
}

// DefaultThresholds returns the canonical tiered thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Advanced: 80, Intermediate: 40, Beginner: 1}
}

// SkillStatus is the computed per-subskill summary for one user. It is
// recomputed from scratch on every evaluation; identical inputs always
// produce identical output.
type SkillStatus struct {
	Name            string              `json:"name"`
	Level           string              `json:"level"`
	OverallPercent  float64             `json:"overall_percent"`
	PerTierPercent  map[string]*float64 `json:"per_level_percent"`
	Status          string              `json:"status"`
	SourceCourseIDs []int               `json:"source_course_ids"`
	AssessedAt      time.Time           `json:"assessed_at"`
}

// SkillsStatus maps subskill ids to their computed status.
type SkillsStatus = map[string]SkillStatus

// RoadmapEvaluator computes skills status for a whole roadmap from a
// user's per-course completion percentages.
type RoadmapEvaluator interface {
	EvaluateRoadmap(roadmap catalog.CanonicalRoadmap, courseProgress map[string]float64) SkillsStatus
}

// NewEvaluator selects the evaluation policy. The tiered policy is
// canonical; the flat policy exists for deployments that have not migrated
// and must be chosen explicitly.
func NewEvaluator(policy string, thresholds Thresholds, cat *catalog.Catalog) RoadmapEvaluator {
	if policy == PolicyFlat {
		return NewFlatCalculator(cat)
	}
	return NewCalculator(thresholds, cat)
}

// clampPercent forces a raw percent into [0, 100].
func clampPercent(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(100, p))
}

// round2 rounds to two decimal places for stable serialized output.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
