package progress

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/skillmap/internal/catalog"
)

var tierOrder = []string{catalog.TierBeginner, catalog.TierIntermediate, catalog.TierAdvanced}

// Calculator implements the tiered skill-progress policy: per-tier course
// averages decide the level in strict advanced > intermediate > beginner
// priority. Mastery of a lower tier never escalates beyond its own level.
type Calculator struct {
	thresholds Thresholds
	catalog    *catalog.Catalog
	now        func() time.Time
}

var _ RoadmapEvaluator = (*Calculator)(nil)

// NewCalculator creates a tiered Calculator. cat may be nil, in which case
// progress keys must match mapped course identifiers directly.
func NewCalculator(thresholds Thresholds, cat *catalog.Catalog) *Calculator {
	return &Calculator{thresholds: thresholds, catalog: cat, now: time.Now}
}

// Evaluate computes the SkillStatus for a single subskill.
func (c *Calculator) Evaluate(sub catalog.Subskill, courseProgress map[string]float64) SkillStatus {
	perTier := make(map[string]*float64, len(tierOrder))
	var sourceIDs []int
	anyProgress := false

	for _, tier := range tierOrder {
		ids := sub.MappedCourses[tier]
		var vals []float64
		for _, id := range ids {
			if cid, ok := c.courseID(id); ok {
				sourceIDs = append(sourceIDs, cid)
			}
			p, ok := c.resolveProgress(id, courseProgress)
			if !ok {
				continue
			}
			if p > 0 {
				anyProgress = true
			}
			vals = append(vals, p)
		}
		if len(vals) == 0 {
			perTier[tier] = nil
			continue
		}
		avg := round2(mean(vals))
		perTier[tier] = &avg
	}

	var tierAvgs []float64
	for _, tier := range tierOrder {
		if perTier[tier] != nil {
			tierAvgs = append(tierAvgs, *perTier[tier])
		}
	}
	overall := 0.0
	if len(tierAvgs) > 0 {
		overall = round2(mean(tierAvgs))
	}

	level := LevelNotStarted
	switch {
	case perTier[catalog.TierAdvanced] != nil && *perTier[catalog.TierAdvanced] >= c.thresholds.Advanced:
		level = LevelAdvanced
	case perTier[catalog.TierIntermediate] != nil && *perTier[catalog.TierIntermediate] >= c.thresholds.Intermediate:
		level = LevelIntermediate
	default:
		for _, tier := range tierOrder {
			if perTier[tier] != nil && *perTier[tier] >= c.thresholds.Beginner {
				level = LevelBeginner
				break
			}
		}
	}

	status := StatusNotStarted
	if anyProgress {
		status = StatusInProgress
		if overall >= 100 {
			status = StatusCompleted
		}
	}

	return SkillStatus{
		Name:            sub.Name,
		Level:           level,
		OverallPercent:  overall,
		PerTierPercent:  perTier,
		Status:          status,
		SourceCourseIDs: sortedUnique(sourceIDs),
		AssessedAt:      c.now().UTC(),
	}
}

// EvaluateRoadmap computes SkillStatus for every subskill in the roadmap.
func (c *Calculator) EvaluateRoadmap(roadmap catalog.CanonicalRoadmap, courseProgress map[string]float64) SkillsStatus {
	out := make(SkillsStatus, len(roadmap.Subskills))
	for _, sub := range roadmap.Subskills {
		if sub.ID == "" {
			continue
		}
		out[sub.ID] = c.Evaluate(sub, courseProgress)
	}
	return out
}

// resolveProgress finds the completion percent for a mapped course
// identifier. Progress maps are keyed by course name or id depending on the
// backend export, so the lookup tries the raw identifier first, then a
// case-insensitive pass, then the catalog's id and name for the resolved
// course.
func (c *Calculator) resolveProgress(identifier string, courseProgress map[string]float64) (float64, bool) {
	if p, ok := lookupProgress(identifier, courseProgress); ok {
		return p, true
	}
	if c.catalog == nil {
		return 0, false
	}
	course, ok := c.catalog.Resolve(identifier)
	if !ok {
		return 0, false
	}
	if p, ok := lookupProgress(course.CourseID, courseProgress); ok {
		return p, true
	}
	return lookupProgress(course.CourseName, courseProgress)
}

func lookupProgress(key string, courseProgress map[string]float64) (float64, bool) {
	if p, ok := courseProgress[key]; ok {
		return clampPercent(p), true
	}
	want := strings.ToLower(strings.TrimSpace(key))
	for k, p := range courseProgress {
		if strings.ToLower(strings.TrimSpace(k)) == want {
			return clampPercent(p), true
		}
	}
	return 0, false
}

// courseID resolves a mapped identifier to its numeric catalog course id.
func (c *Calculator) courseID(identifier string) (int, bool) {
	if c.catalog != nil {
		if course, ok := c.catalog.Resolve(identifier); ok {
			if id, err := strconv.Atoi(course.CourseID); err == nil {
				return id, true
			}
		}
	}
	id, err := strconv.Atoi(strings.TrimSpace(identifier))
	if err != nil {
		return 0, false
	}
	return id, true
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func sortedUnique(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	sort.Ints(ids)
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
