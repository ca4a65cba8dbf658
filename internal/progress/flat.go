package progress

import (
	"time"

	"github.com/kalambet/skillmap/internal/catalog"
)

// Flat policy thresholds, kept for deployments predating the tiered scheme.
const (
	flatAdvancedPercent     = 90
	flatIntermediatePercent = 70
)

// FlatCalculator implements the legacy flat policy: the highest completion
// percent among all mapped courses decides the level directly, with no
// per-tier semantics. Selected only via explicit configuration.
type FlatCalculator struct {
	catalog *catalog.Catalog
	now     func() time.Time
}

var _ RoadmapEvaluator = (*FlatCalculator)(nil)

// NewFlatCalculator creates a flat-policy calculator.
func NewFlatCalculator(cat *catalog.Catalog) *FlatCalculator {
	return &FlatCalculator{catalog: cat, now: time.Now}
}

// Evaluate computes the SkillStatus for one subskill under the flat policy.
func (c *FlatCalculator) Evaluate(sub catalog.Subskill, courseProgress map[string]float64) SkillStatus {
	inner := &Calculator{thresholds: DefaultThresholds(), catalog: c.catalog, now: c.now}

	best := 0.0
	resolvedAny := false
	var sourceIDs []int
	for _, tier := range tierOrder {
		for _, id := range sub.MappedCourses[tier] {
			if cid, ok := inner.courseID(id); ok {
				sourceIDs = append(sourceIDs, cid)
			}
			p, ok := inner.resolveProgress(id, courseProgress)
			if !ok {
				continue
			}
			resolvedAny = true
			if p > best {
				best = p
			}
		}
	}

	level := LevelBeginner
	switch {
	case best >= flatAdvancedPercent:
		level = LevelAdvanced
	case best >= flatIntermediatePercent:
		level = LevelIntermediate
	}
	if !resolvedAny && !hasMappedCourses(sub) {
		level = LevelNotStarted
	}

	status := StatusNotStarted
	if best > 0 {
		status = StatusInProgress
		if best >= 100 {
			status = StatusCompleted
		}
	}

	return SkillStatus{
		Name:            sub.Name,
		Level:           level,
		OverallPercent:  round2(best),
		Status:          status,
		SourceCourseIDs: sortedUnique(sourceIDs),
		AssessedAt:      c.now().UTC(),
	}
}

// EvaluateRoadmap computes flat-policy SkillStatus for every subskill.
func (c *FlatCalculator) EvaluateRoadmap(roadmap catalog.CanonicalRoadmap, courseProgress map[string]float64) SkillsStatus {
	out := make(SkillsStatus, len(roadmap.Subskills))
	for _, sub := range roadmap.Subskills {
		if sub.ID == "" {
			continue
		}
		out[sub.ID] = c.Evaluate(sub, courseProgress)
	}
	return out
}

func hasMappedCourses(sub catalog.Subskill) bool {
	for _, ids := range sub.MappedCourses {
		if len(ids) > 0 {
			return true
		}
	}
	return false
}
