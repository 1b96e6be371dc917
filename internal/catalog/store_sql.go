package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mind-engage/mindengage-courses/internal/db"
	"github.com/mind-engage/mindengage-courses/internal/errs"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(d *sql.DB) *SQLStore { return &SQLStore{db: d} }

func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx, `SELECT id,title,created_at FROM courses WHERE id=$1`, id).
		Scan(&c.ID, &c.Title, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrCourseNotFound
	}
	return c, errs.Fatal("get course", err)
}

func (s *SQLStore) GetChapter(ctx context.Context, id string) (Chapter, error) {
	c, err := scanChapter(s.db.QueryRowContext(ctx,
		`SELECT id,course_id,position,title,is_published FROM chapters WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Chapter{}, ErrChapterNotFound
	}
	return c, errs.Fatal("get chapter", err)
}

// ChapterAt returns the chapter at position in course. ok is false when
// there is none (or, with publishedOnly, none that is published).
func (s *SQLStore) ChapterAt(ctx context.Context, courseID string, position int, publishedOnly bool) (c Chapter, ok bool, err error) {
	q := `SELECT id,course_id,position,title,is_published FROM chapters WHERE course_id=$1 AND position=$2`
	if publishedOnly {
		q += ` AND is_published = TRUE`
	}
	c, err = scanChapter(s.db.QueryRowContext(ctx, q, courseID, position))
	if errors.Is(err, sql.ErrNoRows) {
		return Chapter{}, false, nil
	}
	if err != nil {
		return Chapter{}, false, errs.Fatal("chapter at", err)
	}
	return c, true, nil
}

func (s *SQLStore) ListChapters(ctx context.Context, courseID string, publishedOnly bool) ([]Chapter, error) {
	q := `SELECT id,course_id,position,title,is_published FROM chapters WHERE course_id=$1`
	if publishedOnly {
		q += ` AND is_published = TRUE`
	}
	q += ` ORDER BY position`
	rows, err := s.db.QueryContext(ctx, q, courseID)
	if err != nil {
		return nil, errs.Fatal("list chapters", err)
	}
	defer rows.Close()
	var out []Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, errs.Fatal("list chapters", err)
		}
		out = append(out, c)
	}
	return out, errs.Fatal("list chapters", rows.Err())
}

// QuizForChapter returns the chapter's quiz without its questions.
func (s *SQLStore) QuizForChapter(ctx context.Context, chapterID string) (Quiz, bool, error) {
	qz, err := scanQuiz(s.db.QueryRowContext(ctx,
		`SELECT id,chapter_id,title,required_score,attempt_ceiling,is_published FROM quizzes WHERE chapter_id=$1`, chapterID))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, false, nil
	}
	if err != nil {
		return Quiz{}, false, errs.Fatal("quiz for chapter", err)
	}
	return qz, true, nil
}

// GetQuiz loads a quiz with its questions and answer keys.
func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	qz, err := scanQuiz(s.db.QueryRowContext(ctx,
		`SELECT id,chapter_id,title,required_score,attempt_ceiling,is_published FROM quizzes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return Quiz{}, errs.Fatal("get quiz", err)
	}
	qz.Questions, err = loadQuestions(ctx, s.db, ownerQuiz, id)
	if err != nil {
		return Quiz{}, errs.Fatal("get quiz questions", err)
	}
	return qz, nil
}

// GetExam loads an exam with its questions and answer keys.
func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx,
		`SELECT id,course_id,chapter_id,title,time_limit_min,pass_score,is_published FROM exams WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, ErrExamNotFound
	}
	if err != nil {
		return Exam{}, errs.Fatal("get exam", err)
	}
	e.Questions, err = loadQuestions(ctx, s.db, ownerExam, id)
	if err != nil {
		return Exam{}, errs.Fatal("get exam questions", err)
	}
	return e, nil
}

// ListExams lists exam headers for a course.
func (s *SQLStore) ListExams(ctx context.Context, courseID string, publishedOnly bool) ([]Exam, error) {
	q := `SELECT id,course_id,chapter_id,title,time_limit_min,pass_score,is_published FROM exams WHERE course_id=$1`
	if publishedOnly {
		q += ` AND is_published = TRUE`
	}
	q += ` ORDER BY title, id`
	rows, err := s.db.QueryContext(ctx, q, courseID)
	if err != nil {
		return nil, errs.Fatal("list exams", err)
	}
	defer rows.Close()
	var out []Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, errs.Fatal("list exams", err)
		}
		out = append(out, e)
	}
	return out, errs.Fatal("list exams", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChapter(r rowScanner) (Chapter, error) {
	var c Chapter
	err := r.Scan(&c.ID, &c.CourseID, &c.Position, &c.Title, &c.IsPublished)
	return c, err
}

func scanQuiz(r rowScanner) (Quiz, error) {
	var q Quiz
	err := r.Scan(&q.ID, &q.ChapterID, &q.Title, &q.RequiredScore, &q.AttemptCeiling, &q.IsPublished)
	return q, err
}

func scanExam(r rowScanner) (Exam, error) {
	var (
		e         Exam
		chapterID sql.NullString
		limit     sql.NullInt64
		pass      sql.NullInt64
	)
	if err := r.Scan(&e.ID, &e.CourseID, &chapterID, &e.Title, &limit, &pass, &e.IsPublished); err != nil {
		return Exam{}, err
	}
	if chapterID.Valid {
		e.ChapterID = &chapterID.String
	}
	if limit.Valid {
		v := int(limit.Int64)
		e.TimeLimitMin = &v
	}
	if pass.Valid {
		v := int(pass.Int64)
		e.PassScore = &v
	}
	return e, nil
}

type owner int

const (
	ownerQuiz owner = iota
	ownerExam
)

func loadQuestions(ctx context.Context, q db.Querier, kind owner, ownerID string) ([]Question, error) {
	qsql := `SELECT id,prompt,points FROM questions WHERE quiz_id=$1 ORDER BY position`
	osql := `SELECT o.id,o.question_id,o.label,o.is_correct FROM question_options o
		JOIN questions q ON q.id=o.question_id WHERE q.quiz_id=$1 ORDER BY q.position, o.position`
	if kind == ownerExam {
		qsql = `SELECT id,prompt,points FROM questions WHERE exam_id=$1 ORDER BY position`
		osql = `SELECT o.id,o.question_id,o.label,o.is_correct FROM question_options o
		JOIN questions q ON q.id=o.question_id WHERE q.exam_id=$1 ORDER BY q.position, o.position`
	}

	rows, err := q.QueryContext(ctx, qsql, ownerID)
	if err != nil {
		return nil, err
	}
	var out []Question
	index := map[string]int{}
	for rows.Next() {
		var qq Question
		if err := rows.Scan(&qq.ID, &qq.Prompt, &qq.Points); err != nil {
			rows.Close()
			return nil, err
		}
		index[qq.ID] = len(out)
		out = append(out, qq)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orows, err := q.QueryContext(ctx, osql, ownerID)
	if err != nil {
		return nil, err
	}
	defer orows.Close()
	for orows.Next() {
		var (
			o   Option
			qid string
		)
		if err := orows.Scan(&o.ID, &qid, &o.Label, &o.IsCorrect); err != nil {
			return nil, err
		}
		if i, ok := index[qid]; ok {
			out[i].Options = append(out[i].Options, o)
		}
	}
	return out, orows.Err()
}
