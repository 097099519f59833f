package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/schoolexam/internal/model"
)

// CreateSubject stores a subject.
func (s *Store) CreateSubject(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO subjects (name) VALUES (?)`, name)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetSubject returns a subject by ID.
func (s *Store) GetSubject(ctx context.Context, id int64) (model.Subject, error) {
	var sub model.Subject
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM subjects WHERE id = ?`, id).Scan(&sub.ID, &sub.Name)
	return sub, err
}

type queryExecer interface {
	execer
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// subjectByName returns the subject with the given name, creating it if missing.
func subjectByName(ctx context.Context, db queryExecer, name string) (model.Subject, error) {
	sub := model.Subject{Name: name}
	err := db.QueryRowContext(ctx, `SELECT id FROM subjects WHERE name = ?`, name).Scan(&sub.ID)
	if err != sql.ErrNoRows {
		return sub, err
	}
	res, err := db.ExecContext(ctx, `INSERT INTO subjects (name) VALUES (?)`, name)
	if err != nil {
		return sub, fmt.Errorf("create subject %q: %w", name, err)
	}
	sub.ID, err = res.LastInsertId()
	return sub, err
}

// UpdateSubject renames a subject. It returns sql.ErrNoRows if the subject
// does not exist and ErrDuplicate if the name is taken.
func (s *Store) UpdateSubject(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subjects SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return requireRow(res)
}

// DeleteSubject removes a subject and its questions. It returns ErrInUse
// when any of those questions has graded answers.
func (s *Store) DeleteSubject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInUse
		}
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	slog.Info("deleted subject", "id", id)
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListSubjects returns all subjects ordered by name.
func (s *Store) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []model.Subject
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// CreateClass stores a student class.
func (s *Store) CreateClass(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO student_classes (name) VALUES (?)`, name)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetClass returns a class by ID.
func (s *Store) GetClass(ctx context.Context, id int64) (model.StudentClass, error) {
	var c model.StudentClass
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM student_classes WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	return c, err
}

// ListClasses returns all classes ordered by name.
func (s *Store) ListClasses(ctx context.Context) ([]model.StudentClass, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM student_classes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var classes []model.StudentClass
	for rows.Next() {
		var c model.StudentClass
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

const questionColumns = `id, subject_id, type, year, text, options, answer`

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var q model.Question
	var options string
	if err := row.Scan(&q.ID, &q.SubjectID, &q.Type, &q.Year, &q.Text, &options, &q.Answer); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("decode options of question %d: %w", q.ID, err)
	}
	return q, nil
}

func scanQuestions(rows *sql.Rows) ([]model.Question, error) {
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	return insertQuestion(ctx, s.db, q)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertQuestion(ctx context.Context, db execer, q model.Question) (int64, error) {
	if q.Type == "" {
		q.Type = model.QuestionTypeSchool
	}
	if q.Options == nil {
		q.Options = map[string]string{}
	}
	options, err := json.Marshal(q.Options)
	if err != nil {
		return 0, fmt.Errorf("encode options: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO questions (subject_id, type, year, text, options, answer)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.SubjectID, q.Type, q.Year, q.Text, string(options), q.Answer,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ImportQuestions stores a batch of questions in one transaction, creating
// subjects by name as needed. It returns the number of questions stored.
func (s *Store) ImportQuestions(ctx context.Context, items []model.QuestionImport) (int, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		subjects := make(map[string]int64)
		for i, qi := range items {
			subjectID, ok := subjects[qi.Subject]
			if !ok {
				sub, err := subjectByName(ctx, tx, qi.Subject)
				if err != nil {
					return err
				}
				subjectID = sub.ID
				subjects[qi.Subject] = subjectID
			}
			if _, err := insertQuestion(ctx, tx, model.Question{
				SubjectID: subjectID,
				Type:      qi.Type,
				Year:      qi.Year,
				Text:      qi.Text,
				Options:   qi.Options,
				Answer:    qi.Answer,
			}); err != nil {
				return fmt.Errorf("insert question %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Info("imported questions", "count", len(items))
	return len(items), nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	return scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
}

// GetQuestions returns the questions with the given IDs keyed by ID.
// Missing IDs are simply absent from the map.
func (s *Store) GetQuestions(ctx context.Context, ids []int64) (map[int64]model.Question, error) {
	out := make(map[int64]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	questions, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		out[q.ID] = q
	}
	return out, nil
}

// ListQuestions returns all questions.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	return s.ListQuestionsFiltered(ctx, model.PracticeFilter{})
}

// ListQuestionsFiltered returns questions matching the given filter.
// Nil fields mean no filtering on that field.
func (s *Store) ListQuestionsFiltered(ctx context.Context, f model.PracticeFilter) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE 1=1`
	var args []any
	if f.SubjectID != nil {
		query += ` AND subject_id = ?`
		args = append(args, *f.SubjectID)
	}
	if f.Type != nil {
		query += ` AND type = ?`
		args = append(args, *f.Type)
	}
	if f.Year != nil {
		query += ` AND year = ?`
		args = append(args, *f.Year)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// QuestionIDsBySubject returns the IDs of every question in a subject.
func (s *Store) QuestionIDsBySubject(ctx context.Context, subjectID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM questions WHERE subject_id = ? ORDER BY id`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateQuestion replaces every field of an existing question. Graded
// answers keep their stored marks; their correct answer is read from the
// bank and follows the edit.
func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	if q.Type == "" {
		q.Type = model.QuestionTypeSchool
	}
	if q.Options == nil {
		q.Options = map[string]string{}
	}
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questions SET subject_id = ?, type = ?, year = ?, text = ?, options = ?, answer = ? WHERE id = ?`,
		q.SubjectID, q.Type, q.Year, q.Text, string(options), q.Answer, q.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteQuestion removes a question and its bundle links. It returns
// ErrInUse when graded answers reference it.
func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrInUse
		}
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	slog.Info("deleted question", "id", id)
	return nil
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
