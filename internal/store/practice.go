package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pavelanni/schoolexam/internal/model"
)

// CreatePracticeSession stores a practice session and its question snapshot.
func (s *Store) CreatePracticeSession(ctx context.Context, studentID int64, f model.PracticeFilter, questionIDs []int64) (model.PracticeSession, error) {
	ps := model.PracticeSession{
		StudentID:   studentID,
		Status:      model.StatusInProgress,
		Filter:      f,
		QuestionIDs: questionIDs,
		StartedAt:   time.Now().UTC(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO practice_sessions (student_id, status, filter_subject_id, filter_type, filter_year, started_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ps.StudentID, ps.Status, f.SubjectID, f.Type, f.Year, ps.StartedAt,
		)
		if err != nil {
			return err
		}
		if ps.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		for i, qID := range questionIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO practice_session_questions (session_id, question_id, position) VALUES (?, ?, ?)`,
				ps.ID, qID, i,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ps, err
	}
	slog.Info("started practice session", "id", ps.ID, "student_id", studentID, "questions", len(questionIDs))
	return ps, nil
}

const practiceColumns = `id, student_id, status, filter_subject_id, filter_type, filter_year, started_at, submitted_at, score`

func scanPractice(row interface{ Scan(...any) error }) (model.PracticeSession, error) {
	var ps model.PracticeSession
	err := row.Scan(&ps.ID, &ps.StudentID, &ps.Status,
		&ps.Filter.SubjectID, &ps.Filter.Type, &ps.Filter.Year,
		&ps.StartedAt, &ps.SubmittedAt, &ps.Score)
	return ps, err
}

// GetPracticeSession returns a practice session with its question snapshot.
func (s *Store) GetPracticeSession(ctx context.Context, id int64) (model.PracticeSession, error) {
	ps, err := scanPractice(s.db.QueryRowContext(ctx,
		`SELECT `+practiceColumns+` FROM practice_sessions WHERE id = ?`, id))
	if err != nil {
		return ps, err
	}
	ps.QuestionIDs, err = s.practiceQuestionIDs(ctx, id)
	return ps, err
}

// ListPracticeSessions returns a student's practice sessions, newest first.
func (s *Store) ListPracticeSessions(ctx context.Context, studentID int64) ([]model.PracticeSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+practiceColumns+` FROM practice_sessions WHERE student_id = ? ORDER BY started_at DESC, id DESC`, studentID)
	if err != nil {
		return nil, err
	}
	var sessions []model.PracticeSession
	for rows.Next() {
		ps, err := scanPractice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, ps)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].QuestionIDs, err = s.practiceQuestionIDs(ctx, sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

func (s *Store) practiceQuestionIDs(ctx context.Context, sessionID int64) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT question_id FROM practice_session_questions WHERE session_id = ? ORDER BY position`, sessionID)
}

// FinishPracticeSession moves an in-progress session to status and records
// its answers and score atomically.
func (s *Store) FinishPracticeSession(ctx context.Context, id int64, status model.AttemptStatus, score float64, answers []model.Answer) (time.Time, error) {
	return s.finish(ctx, finishTarget{
		parentTable: "practice_sessions",
		answerTable: "practice_session_answers",
		parentCol:   "session_id",
	}, id, status, score, answers)
}

// PracticeAnswers returns a session's answers with the correct answer
// joined from the question bank.
func (s *Store) PracticeAnswers(ctx context.Context, sessionID int64) ([]model.AnswerView, error) {
	return s.answerViews(ctx, "practice_session_answers", "session_id", sessionID)
}
