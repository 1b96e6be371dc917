package catalog

import "github.com/mind-engage/mindengage-courses/internal/errs"

// ValidateQuizForPublish enforces the publish-time content rule: at least
// one question, and every question has at least one correct option.
func ValidateQuizForPublish(q Quiz) error {
	return validateQuestions("quiz "+q.ID, q.Questions)
}

// ValidateExamForPublish applies the same rule to exams.
func ValidateExamForPublish(e Exam) error {
	return validateQuestions("exam "+e.ID, e.Questions)
}

func validateQuestions(what string, qs []Question) error {
	if len(qs) == 0 {
		return errs.Validationf("publish_invalid", "%s: needs at least one question", what)
	}
	seen := map[string]bool{}
	for i, q := range qs {
		if q.ID != "" {
			if seen[q.ID] {
				return errs.Validationf("publish_invalid", "%s: duplicate question id %s", what, q.ID)
			}
			seen[q.ID] = true
		}
		if q.Points < 0 {
			return errs.Validationf("publish_invalid", "%s: question %d has negative points", what, i+1)
		}
		if len(q.CorrectOptionIDs()) == 0 {
			return errs.Validationf("publish_invalid", "%s: question %d has no correct option", what, i+1)
		}
	}
	return nil
}
