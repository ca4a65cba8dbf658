package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrRoadmapNotFound is returned when no roadmap file matches a job role.
var ErrRoadmapNotFound = errors.New("roadmap not found")

// Tier names for mapped course buckets.
const (
	TierBeginner     = "beginner"
	TierIntermediate = "intermediate"
	TierAdvanced     = "advanced"
)

// Subskill is an atomic competency unit within a roadmap. MappedCourses and
// MappedTutorials are populated by the subskill mapper and read-only
// afterwards.
type Subskill struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Keywords        []string            `json:"keywords,omitempty"`
	MappedCourses   map[string][]string `json:"mapped_courses,omitempty"`
	MappedTutorials []string            `json:"mapped_tutorials,omitempty"`
}

// Clone returns a deep copy of the subskill so callers can mutate mappings
// without touching the shared canonical roadmap.
func (s Subskill) Clone() Subskill {
	out := s
	out.Keywords = append([]string(nil), s.Keywords...)
	out.MappedTutorials = append([]string(nil), s.MappedTutorials...)
	if s.MappedCourses != nil {
		out.MappedCourses = make(map[string][]string, len(s.MappedCourses))
		for tier, ids := range s.MappedCourses {
			out.MappedCourses[tier] = append([]string(nil), ids...)
		}
	}
	return out
}

// CanonicalRoadmap is the static, role-specific curriculum template.
// Loaded once and treated as an immutable snapshot.
type CanonicalRoadmap struct {
	JobRole     string     `json:"job_role"`
	Version     string     `json:"version"`
	Description string     `json:"description,omitempty"`
	Subskills   []Subskill `json:"subskills"`
}

// Clone returns a deep copy of the roadmap.
func (r CanonicalRoadmap) Clone() CanonicalRoadmap {
	out := r
	out.Subskills = make([]Subskill, len(r.Subskills))
	for i, s := range r.Subskills {
		out.Subskills[i] = s.Clone()
	}
	return out
}

// RoleKey normalizes a job role string to a filesystem and cache safe key:
// lowercase with spaces and hyphens collapsed to underscores.
func RoleKey(role string) string {
	key := strings.ToLower(strings.TrimSpace(role))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	for strings.Contains(key, "__") {
		key = strings.ReplaceAll(key, "__", "_")
	}
	return key
}

// RoadmapLoader loads canonical roadmaps from a directory of JSON files.
type RoadmapLoader struct {
	dir string
}

// NewRoadmapLoader returns a loader rooted at dir.
func NewRoadmapLoader(dir string) *RoadmapLoader {
	return &RoadmapLoader{dir: dir}
}

// candidateFilenames yields filename variants for a role key, newest naming
// scheme first.
func candidateFilenames(roleKey string) []string {
	return []string{
		roleKey + "_v1_enhanced.json",
		roleKey + "_v1.json",
		roleKey + ".json",
	}
}

// Load finds and parses the canonical roadmap for a job role, trying each
// filename variant in order.
func (l *RoadmapLoader) Load(jobRole string) (CanonicalRoadmap, error) {
	key := RoleKey(jobRole)
	var tried []string
	for _, name := range candidateFilenames(key) {
		path := filepath.Join(l.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				tried = append(tried, name)
				continue
			}
			return CanonicalRoadmap{}, fmt.Errorf("reading roadmap %s: %w", path, err)
		}
		var roadmap CanonicalRoadmap
		if err := json.Unmarshal(data, &roadmap); err != nil {
			return CanonicalRoadmap{}, fmt.Errorf("parsing roadmap %s: %w", path, err)
		}
		if roadmap.JobRole == "" {
			roadmap.JobRole = jobRole
		}
		return roadmap, nil
	}
	return CanonicalRoadmap{}, fmt.Errorf("%w for role %q (tried %s)", ErrRoadmapNotFound, jobRole, strings.Join(tried, ", "))
}

// Roles lists the job roles that have a roadmap file available, derived from
// the roadmap contents.
func (l *RoadmapLoader) Roles() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("listing roadmap dir %s: %w", l.dir, err)
	}
	seen := make(map[string]bool)
	var roles []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			continue
		}
		var roadmap CanonicalRoadmap
		if err := json.Unmarshal(data, &roadmap); err != nil {
			continue
		}
		if roadmap.JobRole == "" || seen[roadmap.JobRole] {
			continue
		}
		seen[roadmap.JobRole] = true
		roles = append(roles, roadmap.JobRole)
	}
	return roles, nil
}
