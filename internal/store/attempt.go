package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/schoolexam/internal/model"
)

// CreateAttempt starts an exam attempt and records the questions it was
// started with. It returns ErrActiveAttempt when the student already has one
// in progress for the bundle.
func (s *Store) CreateAttempt(ctx context.Context, studentID, bundleID int64, questionIDs []int64) (model.Attempt, error) {
	a := model.Attempt{
		StudentID: studentID,
		BundleID:  bundleID,
		Status:    model.StatusInProgress,
		StartedAt: time.Now().UTC(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO exam_attempts (student_id, bundle_id, status, started_at) VALUES (?, ?, ?, ?)`,
			a.StudentID, a.BundleID, a.Status, a.StartedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrActiveAttempt
			}
			return err
		}
		if a.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		for i, qID := range questionIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO exam_attempt_questions (attempt_id, question_id, position) VALUES (?, ?, ?)`,
				a.ID, qID, i,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		a.ID = 0
		return a, err
	}
	slog.Info("started exam attempt", "id", a.ID, "student_id", studentID, "bundle_id", bundleID, "questions", len(questionIDs))
	return a, nil
}

const attemptColumns = `id, student_id, bundle_id, status, started_at, submitted_at, score`

func scanAttempt(row interface{ Scan(...any) error }) (model.Attempt, error) {
	var a model.Attempt
	err := row.Scan(&a.ID, &a.StudentID, &a.BundleID, &a.Status, &a.StartedAt, &a.SubmittedAt, &a.Score)
	return a, err
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(ctx context.Context, id int64) (model.Attempt, error) {
	return scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = ?`, id))
}

// ListAttemptsByStudent returns a student's attempts, newest first.
func (s *Store) ListAttemptsByStudent(ctx context.Context, studentID int64) ([]model.Attempt, error) {
	return s.listAttempts(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE student_id = ? ORDER BY started_at DESC, id DESC`, studentID)
}

// ListAttemptsByBundle returns all attempts for a bundle in start order.
func (s *Store) ListAttemptsByBundle(ctx context.Context, bundleID int64) ([]model.Attempt, error) {
	return s.listAttempts(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE bundle_id = ? ORDER BY started_at, id`, bundleID)
}

func (s *Store) listAttempts(ctx context.Context, query string, args ...any) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// AttemptQuestionIDs returns the questions an attempt was started with, in
// the order they were shown.
func (s *Store) AttemptQuestionIDs(ctx context.Context, attemptID int64) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT question_id FROM exam_attempt_questions WHERE attempt_id = ? ORDER BY position`, attemptID)
}

// FinishAttempt moves an in-progress attempt to status and records its
// answers and score atomically. It returns ErrNotInProgress if the attempt
// was finished by someone else first and *MissingQuestionError if an answered
// question was deleted from the bank meanwhile.
func (s *Store) FinishAttempt(ctx context.Context, id int64, status model.AttemptStatus, score float64, answers []model.Answer) (time.Time, error) {
	return s.finish(ctx, finishTarget{
		parentTable: "exam_attempts",
		answerTable: "exam_attempt_answers",
		parentCol:   "attempt_id",
	}, id, status, score, answers)
}

// AttemptAnswers returns an attempt's answers with the correct answer
// joined from the question bank.
func (s *Store) AttemptAnswers(ctx context.Context, attemptID int64) ([]model.AnswerView, error) {
	return s.answerViews(ctx, "exam_attempt_answers", "attempt_id", attemptID)
}

type finishTarget struct {
	parentTable string
	answerTable string
	parentCol   string
}

func (s *Store) finish(ctx context.Context, t finishTarget, id int64, status model.AttemptStatus, score float64, answers []model.Answer) (time.Time, error) {
	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE `+t.parentTable+` SET status = ?, submitted_at = ?, score = ?
			 WHERE id = ? AND status = ?`,
			status, now, score, id, model.StatusInProgress,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotInProgress
		}
		for _, a := range answers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO `+t.answerTable+` (`+t.parentCol+`, question_id, selected_answer, is_correct, marks)
				 VALUES (?, ?, ?, ?, ?)`,
				id, a.QuestionID, a.Selected, a.Correct, a.Marks,
			); err != nil {
				if isForeignKeyViolation(err) {
					return &MissingQuestionError{QuestionID: a.QuestionID}
				}
				return fmt.Errorf("insert answer for question %d: %w", a.QuestionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return now, err
	}
	slog.Info("finished "+t.parentTable, "id", id, "status", status, "score", score, "answers", len(answers))
	return now, nil
}

func (s *Store) answerViews(ctx context.Context, table, parentCol string, parentID int64) ([]model.AnswerView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.`+parentCol+`, a.question_id, a.selected_answer, a.is_correct, a.marks, q.answer
		 FROM `+table+` a JOIN questions q ON q.id = a.question_id
		 WHERE a.`+parentCol+` = ? ORDER BY a.id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	views := []model.AnswerView{}
	for rows.Next() {
		var v model.AnswerView
		if err := rows.Scan(&v.ID, &v.ParentID, &v.QuestionID, &v.Selected, &v.Correct, &v.Marks, &v.CorrectAnswer); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
