package quiz

import (
	"bytes"
	"encoding/json"

	"github.com/mind-engage/mindengage-courses/internal/catalog"
	"github.com/mind-engage/mindengage-courses/internal/errs"
)

// Answer is the tagged shape every submitted entry must match.
type Answer struct {
	QuestionID       string  `json:"question_id"`
	SelectedOptionID *string `json:"selected_option_id"`
}

// DecodeAnswers parses a submission leniently. The payload itself must be
// a JSON array (or null); entries that do not match Answer are dropped and
// counted instead of failing the whole submission.
func DecodeAnswers(raw json.RawMessage) ([]Answer, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, 0, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, 0, errs.Validation("invalid_answers", "answers must be an array")
	}
	out := make([]Answer, 0, len(entries))
	dropped := 0
	for _, e := range entries {
		var a struct {
			QuestionID       *string         `json:"question_id"`
			SelectedOptionID json.RawMessage `json:"selected_option_id"`
		}
		if err := json.Unmarshal(e, &a); err != nil || a.QuestionID == nil || *a.QuestionID == "" {
			dropped++
			continue
		}
		ans := Answer{QuestionID: *a.QuestionID}
		sel := bytes.TrimSpace(a.SelectedOptionID)
		if len(sel) > 0 && !bytes.Equal(sel, []byte("null")) {
			var s string
			if err := json.Unmarshal(sel, &s); err != nil {
				dropped++
				continue
			}
			ans.SelectedOptionID = &s
		}
		out = append(out, ans)
	}
	return out, dropped, nil
}

// matchAnswers keeps answers whose question belongs to qs and whose option
// belongs to that question. Unknown questions, foreign options and repeats
// of an already answered question are counted as dropped.
func matchAnswers(qs []catalog.Question, answers []Answer) (map[string]string, int) {
	selected := make(map[string]string, len(answers))
	seen := make(map[string]bool, len(answers))
	dropped := 0
	for _, a := range answers {
		q, ok := catalog.FindQuestion(qs, a.QuestionID)
		if !ok || seen[a.QuestionID] {
			dropped++
			continue
		}
		seen[a.QuestionID] = true
		if a.SelectedOptionID == nil {
			continue
		}
		if !q.HasOption(*a.SelectedOptionID) {
			dropped++
			continue
		}
		selected[a.QuestionID] = *a.SelectedOptionID
	}
	return selected, dropped
}
