package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
)

// ChapterImport is a chapter plus its optional quiz.
type ChapterImport struct {
	Chapter
	Quiz *Quiz `json:"quiz,omitempty"`
}

// CourseImport is the full tree accepted by ImportCourse.
type CourseImport struct {
	Course
	Chapters []ChapterImport `json:"chapters"`
	Exams    []Exam          `json:"exams"`
}

// ImportCourse upserts a whole course tree in one transaction. Missing ids
// are generated. Questions of every quiz/exam in the tree are replaced.
// Published quizzes and exams must pass publish validation.
func (s *SQLStore) ImportCourse(ctx context.Context, in CourseImport) (CourseImport, error) {
	if in.Title == "" {
		return in, errs.Validation("invalid_course", "course title is required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	positions := map[int]bool{}
	for i := range in.Chapters {
		ch := &in.Chapters[i]
		if ch.Position < 1 {
			return in, errs.Validationf("invalid_course", "chapter %q: position must be >= 1", ch.Title)
		}
		if positions[ch.Position] {
			return in, errs.Validationf("invalid_course", "duplicate chapter position %d", ch.Position)
		}
		positions[ch.Position] = true
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.CourseID = in.ID
		if ch.Quiz == nil {
			continue
		}
		qz := ch.Quiz
		if qz.ID == "" {
			qz.ID = uuid.NewString()
		}
		qz.ChapterID = ch.ID
		if qz.RequiredScore < 0 || qz.RequiredScore > 100 {
			return in, errs.Validationf("invalid_course", "quiz %s: required_score must be 0..100", qz.ID)
		}
		if qz.AttemptCeiling < -1 {
			return in, errs.Validationf("invalid_course", "quiz %s: attempt_ceiling must be -1 or >= 0", qz.ID)
		}
		assignQuestionIDs(qz.Questions)
		if qz.IsPublished {
			if err := ValidateQuizForPublish(*qz); err != nil {
				return in, err
			}
		}
	}
	for i := range in.Exams {
		e := &in.Exams[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CourseID = in.ID
		if e.TimeLimitMin != nil && *e.TimeLimitMin <= 0 {
			e.TimeLimitMin = nil
		}
		if e.PassScore != nil && (*e.PassScore < 0 || *e.PassScore > 100) {
			return in, errs.Validationf("invalid_course", "exam %s: pass_score must be 0..100", e.ID)
		}
		assignQuestionIDs(e.Questions)
		if e.IsPublished {
			if err := ValidateExamForPublish(*e); err != nil {
				return in, err
			}
		}
	}

	now := time.Now().Unix()
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO courses (id,title,created_at) VALUES ($1,$2,$3)
			ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title`, in.ID, in.Title, now); err != nil {
			return err
		}
		// Park existing positions out of the way so chapters can be reordered.
		for _, ch := range in.Chapters {
			if _, err := tx.ExecContext(ctx, `UPDATE chapters SET position = -position - 1 WHERE id=$1 AND course_id=$2`,
				ch.ID, in.ID); err != nil {
				return err
			}
		}
		for _, ch := range in.Chapters {
			if _, err := tx.ExecContext(ctx, `INSERT INTO chapters (id,course_id,position,title,is_published)
				VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT (id) DO UPDATE SET position=EXCLUDED.position, title=EXCLUDED.title, is_published=EXCLUDED.is_published`,
				ch.ID, in.ID, ch.Position, ch.Title, ch.IsPublished); err != nil {
				return err
			}
			if ch.Quiz == nil {
				continue
			}
			qz := ch.Quiz
			if _, err := tx.ExecContext(ctx, `INSERT INTO quizzes (id,chapter_id,title,required_score,attempt_ceiling,is_published)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, required_score=EXCLUDED.required_score,
					attempt_ceiling=EXCLUDED.attempt_ceiling, is_published=EXCLUDED.is_published`,
				qz.ID, ch.ID, qz.Title, qz.RequiredScore, qz.AttemptCeiling, qz.IsPublished); err != nil {
				return err
			}
			if err := replaceQuestions(ctx, tx, ownerQuiz, qz.ID, qz.Questions); err != nil {
				return err
			}
		}
		for _, e := range in.Exams {
			if _, err := tx.ExecContext(ctx, `INSERT INTO exams (id,course_id,chapter_id,title,time_limit_min,pass_score,is_published)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (id) DO UPDATE SET chapter_id=EXCLUDED.chapter_id, title=EXCLUDED.title,
					time_limit_min=EXCLUDED.time_limit_min, pass_score=EXCLUDED.pass_score, is_published=EXCLUDED.is_published`,
				e.ID, in.ID, e.ChapterID, e.Title, e.TimeLimitMin, e.PassScore, e.IsPublished); err != nil {
				return err
			}
			if err := replaceQuestions(ctx, tx, ownerExam, e.ID, e.Questions); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return in, errs.Validation("import_conflict", "an id or chapter position in the import collides with existing content")
		}
		return in, errs.Fatal("import course", err)
	}
	return in, nil
}

func assignQuestionIDs(qs []Question) {
	for i := range qs {
		if qs[i].ID == "" {
			qs[i].ID = uuid.NewString()
		}
		for j := range qs[i].Options {
			if qs[i].Options[j].ID == "" {
				qs[i].Options[j].ID = uuid.NewString()
			}
		}
	}
}

func replaceQuestions(ctx context.Context, tx *sql.Tx, kind owner, ownerID string, qs []Question) error {
	col := "quiz_id"
	if kind == ownerExam {
		col = "exam_id"
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM question_options WHERE question_id IN
		(SELECT id FROM questions WHERE `+col+`=$1)`, ownerID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE `+col+`=$1`, ownerID); err != nil {
		return err
	}
	for i, q := range qs {
		var quizID, examID any
		if kind == ownerQuiz {
			quizID = ownerID
		} else {
			examID = ownerID
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO questions (id,quiz_id,exam_id,position,prompt,points)
			VALUES ($1,$2,$3,$4,$5,$6)`, q.ID, quizID, examID, i+1, q.Prompt, q.Points); err != nil {
			return err
		}
		for j, o := range q.Options {
			if _, err := tx.ExecContext(ctx, `INSERT INTO question_options (id,question_id,position,label,is_correct)
				VALUES ($1,$2,$3,$4,$5)`, o.ID, q.ID, j+1, o.Label, o.IsCorrect); err != nil {
				return err
			}
		}
	}
	return nil
}
