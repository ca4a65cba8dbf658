package progress

// AssessmentSummary reports how much of a roadmap has been assessed.
type AssessmentSummary struct {
	Assessed   int     `json:"assessed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Complete   bool    `json:"complete"`
}

// Summarize counts subskills whose level has been decided. A subskill is
// assessed once its level is anything other than not_started.
func Summarize(status SkillsStatus) AssessmentSummary {
	s := AssessmentSummary{Total: len(status)}
	for _, skill := range status {
		if skill.Level != "" && skill.Level != LevelNotStarted {
			s.Assessed++
		}
	}
	if s.Total > 0 {
		s.Percentage = round2(float64(s.Assessed) / float64(s.Total) * 100)
	}
	s.Complete = s.Total > 0 && s.Assessed == s.Total
	return s
}
