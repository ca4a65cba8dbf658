package progress

import (
	"reflect"
	"testing"
	"time"

	"github.com/kalambet/skillmap/internal/catalog"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func testCatalog() *catalog.Catalog {
	return catalog.NewCatalog([]catalog.Course{
		{CourseID: "1", CourseName: "Belajar Dasar HTML", CourseLevel: "beginner"},
		{CourseID: "2", CourseName: "CSS Menengah", CourseLevel: "intermediate"},
		{CourseID: "3", CourseName: "JavaScript Mahir", CourseLevel: "advanced"},
	})
}

func newTestCalculator() *Calculator {
	c := NewCalculator(DefaultThresholds(), testCatalog())
	c.now = fixedClock
	return c
}

func tieredSubskill() catalog.Subskill {
	return catalog.Subskill{
		ID:   "ss-web",
		Name: "Web Foundations",
		MappedCourses: map[string][]string{
			catalog.TierBeginner:     {"1"},
			catalog.TierIntermediate: {"2"},
			catalog.TierAdvanced:     {"3"},
		},
	}
}

func TestEvaluate_BeginnerTierAloneNeverPromotes(t *testing.T) {
	c := newTestCalculator()
	got := c.Evaluate(tieredSubskill(), map[string]float64{"1": 100})

	if got.Level != LevelBeginner {
		t.Errorf("level = %s, want Beginner", got.Level)
	}
	if got.OverallPercent != 100 {
		t.Errorf("overall = %f, want 100", got.OverallPercent)
	}
	if got.PerTierPercent[catalog.TierBeginner] == nil || *got.PerTierPercent[catalog.TierBeginner] != 100 {
		t.Errorf("beginner tier = %v, want 100", got.PerTierPercent[catalog.TierBeginner])
	}
	if got.PerTierPercent[catalog.TierIntermediate] != nil || got.PerTierPercent[catalog.TierAdvanced] != nil {
		t.Error("unresolved tiers must be nil, not zero")
	}
}

func TestEvaluate_AdvancedThresholdPromotes(t *testing.T) {
	c := newTestCalculator()
	got := c.Evaluate(tieredSubskill(), map[string]float64{"1": 10, "2": 50, "3": 85})

	if got.Level != LevelAdvanced {
		t.Errorf("level = %s, want Advanced", got.Level)
	}
}

func TestEvaluate_IntermediateThreshold(t *testing.T) {
	c := newTestCalculator()
	got := c.Evaluate(tieredSubskill(), map[string]float64{"2": 45})

	if got.Level != LevelIntermediate {
		t.Errorf("level = %s, want Intermediate", got.Level)
	}
}

func TestEvaluate_Unmapped(t *testing.T) {
	c := newTestCalculator()
	got := c.Evaluate(catalog.Subskill{ID: "ss-empty", Name: "Empty"}, map[string]float64{"1": 100})

	if got.Level != LevelNotStarted || got.Status != StatusNotStarted || got.OverallPercent != 0 {
		t.Errorf("unmapped subskill should be fully not_started, got %+v", got)
	}
}

func TestEvaluate_StatusIndependentOfLevel(t *testing.T) {
	c := newTestCalculator()

	got := c.Evaluate(tieredSubskill(), map[string]float64{"1": 50})
	if got.Status != StatusInProgress {
		t.Errorf("status = %s, want in_progress", got.Status)
	}

	got = c.Evaluate(tieredSubskill(), nil)
	if got.Status != StatusNotStarted {
		t.Errorf("status = %s, want not_started", got.Status)
	}

	got = c.Evaluate(tieredSubskill(), map[string]float64{"1": 100, "2": 100, "3": 100})
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Level != LevelAdvanced {
		t.Errorf("level = %s, want Advanced", got.Level)
	}
}

func TestEvaluate_PercentClamping(t *testing.T) {
	c := newTestCalculator()
	got := c.Evaluate(tieredSubskill(), map[string]float64{"1": 250, "2": -30})

	if *got.PerTierPercent[catalog.TierBeginner] != 100 {
		t.Errorf("beginner tier = %v, want clamped 100", *got.PerTierPercent[catalog.TierBeginner])
	}
	if *got.PerTierPercent[catalog.TierIntermediate] != 0 {
		t.Errorf("intermediate tier = %v, want clamped 0", *got.PerTierPercent[catalog.TierIntermediate])
	}
}

func TestEvaluate_NameFallbackResolution(t *testing.T) {
	c := newTestCalculator()
	// Progress keyed by course name with different casing.
	got := c.Evaluate(tieredSubskill(), map[string]float64{"belajar dasar html": 60})

	if got.PerTierPercent[catalog.TierBeginner] == nil || *got.PerTierPercent[catalog.TierBeginner] != 60 {
		t.Errorf("beginner tier = %v, want 60 via name fallback", got.PerTierPercent[catalog.TierBeginner])
	}
}

func TestEvaluate_SourceCourseIDsSortedUnique(t *testing.T) {
	c := newTestCalculator()
	sub := catalog.Subskill{
		ID:   "ss-dup",
		Name: "Dup",
		MappedCourses: map[string][]string{
			catalog.TierBeginner: {"3", "1", "1"},
			catalog.TierAdvanced: {"2"},
		},
	}
	got := c.Evaluate(sub, nil)
	if !reflect.DeepEqual(got.SourceCourseIDs, []int{1, 2, 3}) {
		t.Errorf("source ids = %v, want [1 2 3]", got.SourceCourseIDs)
	}
}

func TestEvaluateRoadmap_Deterministic(t *testing.T) {
	c := newTestCalculator()
	roadmap := catalog.CanonicalRoadmap{
		JobRole:   "Front-End Web Developer",
		Subskills: []catalog.Subskill{tieredSubskill(), {ID: "ss-empty", Name: "Empty"}},
	}
	progress := map[string]float64{"1": 33.333, "2": 66.667}

	a := c.EvaluateRoadmap(roadmap, progress)
	b := c.EvaluateRoadmap(roadmap, progress)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs must produce identical output")
	}
	if len(a) != 2 {
		t.Errorf("expected 2 subskills, got %d", len(a))
	}
	if a["ss-web"].OverallPercent != round2((33.33+66.67)/2) {
		t.Errorf("overall = %f", a["ss-web"].OverallPercent)
	}
}

func TestFlatCalculator_Levels(t *testing.T) {
	c := NewFlatCalculator(testCatalog())
	c.now = fixedClock
	sub := tieredSubskill()

	cases := []struct {
		percent float64
		level   string
		status  string
	}{
		{0, LevelBeginner, StatusNotStarted},
		{50, LevelBeginner, StatusInProgress},
		{75, LevelIntermediate, StatusInProgress},
		{95, LevelAdvanced, StatusInProgress},
		{100, LevelAdvanced, StatusCompleted},
	}
	for _, tc := range cases {
		got := c.Evaluate(sub, map[string]float64{"1": tc.percent})
		if got.Level != tc.level {
			t.Errorf("percent %f: level = %s, want %s", tc.percent, got.Level, tc.level)
		}
		if got.Status != tc.status {
			t.Errorf("percent %f: status = %s, want %s", tc.percent, got.Status, tc.status)
		}
	}
}

func TestFlatCalculator_UsesHighestMappedCourse(t *testing.T) {
	c := NewFlatCalculator(testCatalog())
	c.now = fixedClock
	got := c.Evaluate(tieredSubskill(), map[string]float64{"1": 20, "2": 95, "3": 10})

	if got.Level != LevelAdvanced {
		t.Errorf("level = %s, want Advanced from max percent", got.Level)
	}
	if got.OverallPercent != 95 {
		t.Errorf("overall = %f, want 95", got.OverallPercent)
	}
}

func TestNewEvaluator_PolicySelection(t *testing.T) {
	if _, ok := NewEvaluator(PolicyFlat, DefaultThresholds(), nil).(*FlatCalculator); !ok {
		t.Error("flat policy should select FlatCalculator")
	}
	if _, ok := NewEvaluator(PolicyTiered, DefaultThresholds(), nil).(*Calculator); !ok {
		t.Error("tiered policy should select Calculator")
	}
	if _, ok := NewEvaluator("", DefaultThresholds(), nil).(*Calculator); !ok {
		t.Error("unset policy should default to tiered")
	}
}

func TestSummarize(t *testing.T) {
	status := SkillsStatus{
		"a": {Level: LevelBeginner},
		"b": {Level: LevelNotStarted},
		"c": {Level: LevelAdvanced},
		"d": {Level: LevelIntermediate},
	}
	got := Summarize(status)
	if got.Assessed != 3 || got.Total != 4 {
		t.Errorf("assessed/total = %d/%d, want 3/4", got.Assessed, got.Total)
	}
	if got.Percentage != 75 {
		t.Errorf("percentage = %f, want 75", got.Percentage)
	}
	if got.Complete {
		t.Error("summary should not be complete")
	}

	empty := Summarize(SkillsStatus{})
	if empty.Complete || empty.Percentage != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}
