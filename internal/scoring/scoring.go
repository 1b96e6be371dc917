// Package scoring computes a percentage score from single-choice answers.
// It is pure: no storage, no clock, no pass policy.
package scoring

import "math"

// Item is one question as seen by the scorer.
type Item struct {
	QuestionID     string
	CorrectOptions []string // option ids marked correct
	Points         float64
	Selected       *string // nil = unanswered
}

// Graded is the per-question outcome, in input order.
type Graded struct {
	QuestionID string
	Selected   *string
	Correct    bool
	Earned     float64
}

type Result struct {
	EarnedPoints float64
	TotalPoints  float64
	Percentage   int // 0..100
	CorrectCount int
	TotalCount   int
	Items        []Graded
}

// Score grades items in order. Unanswered questions are incorrect and
// still count their full weight towards TotalPoints.
func Score(items []Item) Result {
	res := Result{TotalCount: len(items), Items: make([]Graded, 0, len(items))}
	for _, it := range items {
		pts := it.Points
		if pts < 0 {
			pts = 0
		}
		g := Graded{QuestionID: it.QuestionID, Selected: it.Selected}
		if it.Selected != nil && contains(it.CorrectOptions, *it.Selected) {
			g.Correct = true
			g.Earned = pts
			res.CorrectCount++
		}
		res.EarnedPoints += g.Earned
		res.TotalPoints += pts
		res.Items = append(res.Items, g)
	}
	res.Percentage = Percentage(res.EarnedPoints, res.TotalPoints)
	return res
}

// Percentage is round(100*earned/total), 0 when total is 0, clamped to [0,100].
func Percentage(earned, total float64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * earned / total))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Passed is the caller-supplied threshold comparison.
func Passed(percentage, threshold int) bool { return percentage >= threshold }

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
