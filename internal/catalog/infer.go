package catalog

import "strings"

// roleKeywords maps job roles to course-title keywords used for inference.
var roleKeywords = map[string][]string{
	"Front-End Web Developer": {
		"web", "front-end", "frontend", "javascript", "js",
		"react", "html", "css", "pemrograman web",
	},
	"Backend Developer": {
		"backend", "back-end", "api", "server", "database",
		"node", "express", "python", "django",
	},
	"Mobile Developer": {
		"android", "mobile", "kotlin", "flutter", "ios", "swift",
	},
	"AI Engineer": {
		"ai", "artificial intelligence", "machine learning",
		"ml", "deep learning", "data science",
	},
}

// InferJobRole guesses a job role from the titles of a user's active
// courses by counting keyword matches per role. Returns "" when no role
// scores above zero.
func InferJobRole(activeCourses []string) string {
	if len(activeCourses) == 0 {
		return ""
	}

	scores := make(map[string]int, len(roleKeywords))
	for _, course := range activeCourses {
		lower := strings.ToLower(course)
		for role, keywords := range roleKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					scores[role]++
				}
			}
		}
	}

	best := ""
	bestScore := 0
	for role, score := range scores {
		if score > bestScore || (score == bestScore && score > 0 && role < best) {
			best = role
			bestScore = score
		}
	}
	return best
}
