package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RoleMapping is a cached subskill-to-catalog mapping for one job role.
// The payload is the mapped roadmap serialized as JSON. Entries are
// advisory: a missing or corrupt entry means the mapping is recomputed.
type RoleMapping struct {
	RoleKey     string
	RoadmapJSON string
	UpdatedAt   time.Time
}

// Evaluation is one audit record of a skill-progress evaluation run.
type Evaluation struct {
	ID         string
	UserID     string
	JobRole    string
	SkillsJSON string // SkillsStatus serialized as JSON
	CreatedAt  time.Time
}
