package adaptive

import (
	"strings"

	"github.com/kalambet/skillmap/internal/progress"
)

// Level is a user's normalized proficiency for one subskill. Raw profile
// input is duck-typed (string, record, or absent); it is normalized to a
// Level once at this boundary and never re-inspected downstream.
type Level int

const (
	LevelBeginner Level = iota
	LevelIntermediate
	LevelAdvanced
)

func (l Level) String() string {
	switch l {
	case LevelAdvanced:
		return "advanced"
	case LevelIntermediate:
		return "intermediate"
	default:
		return "beginner"
	}
}

// NormalizeLevel maps raw level input to a Level. It is total: any
// unrecognized shape or value yields LevelBeginner. Recognized forms:
//   - the level names beginner/intermediate/advanced (any case)
//   - platform statuses completed/selesai/done, mapped to advanced
//   - platform statuses in_progress/ongoing, mapped to intermediate
//   - a record carrying a "status" field, normalized recursively
func NormalizeLevel(raw any) Level {
	switch v := raw.(type) {
	case nil:
		return LevelBeginner
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "advanced":
			return LevelAdvanced
		case "intermediate":
			return LevelIntermediate
		case "beginner":
			return LevelBeginner
		case "completed", "selesai", "done":
			return LevelAdvanced
		case "in_progress", "ongoing":
			return LevelIntermediate
		default:
			return LevelBeginner
		}
	case map[string]any:
		return NormalizeLevel(v["status"])
	case progress.SkillStatus:
		return levelOf(v)
	default:
		return LevelBeginner
	}
}

// levelOf normalizes a computed SkillStatus, preferring its decided level
// and falling back to the coarse status when no level was assessed.
func levelOf(s progress.SkillStatus) Level {
	if s.Level != "" && s.Level != progress.LevelNotStarted {
		return NormalizeLevel(s.Level)
	}
	return NormalizeLevel(s.Status)
}

// NormalizeLevels converts a raw JSON-shaped skills_status map into
// normalized levels.
func NormalizeLevels(raw map[string]any) map[string]Level {
	out := make(map[string]Level, len(raw))
	for id, v := range raw {
		out[id] = NormalizeLevel(v)
	}
	return out
}

// LevelsFromStatus converts computed skills status into normalized levels.
func LevelsFromStatus(status progress.SkillsStatus) map[string]Level {
	out := make(map[string]Level, len(status))
	for id, s := range status {
		out[id] = levelOf(s)
	}
	return out
}
