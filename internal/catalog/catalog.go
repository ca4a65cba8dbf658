package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Course is one entry in the course catalog export.
type Course struct {
	CourseID       string `json:"course_id"`
	CourseName     string `json:"course_name"`
	LearningPathID string `json:"learning_path_id"`
	HoursToStudy   int    `json:"hours_to_study"`
	CourseLevel    string `json:"course_level_str"`
}

// Catalog indexes courses by id and by normalized name for progress
// reconciliation. Progress keys in user profiles may be either course ids
// or display names.
type Catalog struct {
	courses []Course
	byID    map[string]Course
	byName  map[string]Course
}

// NewCatalog builds lookup indexes over the given courses.
func NewCatalog(courses []Course) *Catalog {
	c := &Catalog{
		courses: courses,
		byID:    make(map[string]Course, len(courses)),
		byName:  make(map[string]Course, len(courses)),
	}
	for _, course := range courses {
		c.byID[course.CourseID] = course
		c.byName[strings.ToLower(strings.TrimSpace(course.CourseName))] = course
	}
	return c
}

// LoadCatalog reads a course catalog from a JSON file holding a list of
// course rows.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	var courses []Course
	if err := json.Unmarshal(data, &courses); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return NewCatalog(courses), nil
}

// Courses returns all catalog entries in file order.
func (c *Catalog) Courses() []Course {
	return c.courses
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.courses)
}

// Resolve finds a course by identifier, matching first by course id and
// falling back to a case-insensitive name match.
func (c *Catalog) Resolve(identifier string) (Course, bool) {
	if course, ok := c.byID[identifier]; ok {
		return course, true
	}
	course, ok := c.byName[strings.ToLower(strings.TrimSpace(identifier))]
	return course, ok
}
