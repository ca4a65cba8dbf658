package adaptive

import (
	"fmt"
	"strings"

	"github.com/kalambet/skillmap/internal/catalog"
)

// FilteredRoadmap is the role-aware, pruned roadmap returned to the user.
type FilteredRoadmap struct {
	JobRole     string             `json:"job_role"`
	Version     string             `json:"version"`
	Description string             `json:"description,omitempty"`
	Subskills   []catalog.Subskill `json:"subskills"`
}

// FilterSubskills prunes the roadmap's subskills by the user's levels,
// preserving input order. Advanced subskills are omitted entirely,
// intermediate ones lose their beginner-tier courses, and beginner or
// unknown subskills pass through unchanged. An absent level entry counts
// as beginner.
func FilterSubskills(roadmap catalog.CanonicalRoadmap, levels map[string]Level) []catalog.Subskill {
	filtered := make([]catalog.Subskill, 0, len(roadmap.Subskills))
	for _, sub := range roadmap.Subskills {
		level, ok := levels[sub.ID]
		if !ok {
			level = LevelBeginner
		}
		switch level {
		case LevelAdvanced:
			continue
		case LevelIntermediate:
			trimmed := sub.Clone()
			delete(trimmed.MappedCourses, catalog.TierBeginner)
			if len(trimmed.MappedCourses) == 0 {
				trimmed.MappedCourses = nil
			}
			filtered = append(filtered, trimmed)
		default:
			filtered = append(filtered, sub)
		}
	}
	return filtered
}

// FilterRoadmap applies FilterSubskills and wraps the result with the
// roadmap's metadata.
func FilterRoadmap(roadmap catalog.CanonicalRoadmap, levels map[string]Level) FilteredRoadmap {
	return FilteredRoadmap{
		JobRole:     roadmap.JobRole,
		Version:     roadmap.Version,
		Description: roadmap.Description,
		Subskills:   FilterSubskills(roadmap, levels),
	}
}

// NextStep returns the recommendation text shown for a subskill at the
// given level.
func NextStep(level Level, mappedCourses []string) string {
	switch level {
	case LevelAdvanced:
		return "Kerjakan project kecil untuk menguatkan konsep, lalu lanjutkan ke proyek tingkat mahir."
	case LevelIntermediate:
		return fmt.Sprintf("Lanjutkan ke kursus menengah dari daftar: %s.", strings.Join(mappedCourses, ", "))
	default:
		first := "Cari kursus dasar"
		if len(mappedCourses) > 0 {
			first = mappedCourses[0]
		}
		return fmt.Sprintf("Mulai dari kursus: %s dan selesaikan modul pengantar.", first)
	}
}
