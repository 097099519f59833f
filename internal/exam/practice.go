package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/schoolexam/internal/model"
	"github.com/pavelanni/schoolexam/internal/store"
)

// StartedPractice is a new practice session with its questions, keys stripped.
type StartedPractice struct {
	Session   model.PracticeSession  `json:"session"`
	Questions []model.PublicQuestion `json:"questions"`
}

// PracticeResult is a completed practice session with its answers for review.
type PracticeResult struct {
	Session model.PracticeSession `json:"session"`
	Answers []model.AnswerView    `json:"answers"`
}

// StartPracticeSession draws up to the practice cap of questions matching
// every supplied filter field and snapshots them on a new session.
func (s *Service) StartPracticeSession(ctx context.Context, caller *model.User, f model.PracticeFilter) (StartedPractice, error) {
	var out StartedPractice
	if err := requireRole(caller, model.UserRoleStudent); err != nil {
		return out, err
	}
	matching, err := s.store.ListQuestionsFiltered(ctx, f)
	if err != nil {
		return out, fmt.Errorf("filter questions: %w", err)
	}
	if len(matching) == 0 {
		return out, errNoPracticeQuestions()
	}

	byID := make(map[int64]model.Question, len(matching))
	ids := make([]int64, len(matching))
	for i, q := range matching {
		byID[q.ID] = q
		ids[i] = q.ID
	}
	picked := s.sampler.draw(ids, s.practiceMax)

	ps, err := s.store.CreatePracticeSession(ctx, caller.ID, f, picked)
	if err != nil {
		return out, fmt.Errorf("create practice session: %w", err)
	}
	questions := make([]model.Question, len(picked))
	for i, id := range picked {
		questions[i] = byID[id]
	}
	return StartedPractice{Session: ps, Questions: publicQuestions(questions)}, nil
}

// SubmitPracticeSession grades the answers against the session snapshot and
// completes it. It succeeds at most once per session.
func (s *Service) SubmitPracticeSession(ctx context.Context, caller *model.User, sessionID int64, answers []model.SubmittedAnswer) (model.PracticeSession, error) {
	ps, err := s.ownSession(ctx, caller, sessionID)
	if err != nil {
		return ps, err
	}
	if ps.Status != model.StatusInProgress {
		return ps, errNotInProgress(ps.Status)
	}
	graded, err := s.gradeSubmission(ctx, ps.QuestionIDs, answers, MsgNotInSession)
	if err != nil {
		return ps, err
	}
	if _, err := s.store.FinishPracticeSession(ctx, ps.ID, model.StatusCompleted, Total(graded), graded); err != nil {
		if errors.Is(err, store.ErrNotInProgress) {
			return ps, errNotInProgress(model.StatusCompleted)
		}
		if e := missingQuestion(err); e != nil {
			return ps, e
		}
		return ps, fmt.Errorf("finish practice session %d: %w", ps.ID, err)
	}
	return s.store.GetPracticeSession(ctx, ps.ID)
}

// PracticeSessionResult returns a completed session with the correct answers.
func (s *Service) PracticeSessionResult(ctx context.Context, caller *model.User, sessionID int64) (PracticeResult, error) {
	ps, err := s.ownSession(ctx, caller, sessionID)
	if err != nil {
		return PracticeResult{}, err
	}
	if ps.Status == model.StatusInProgress {
		return PracticeResult{}, errStillInProgress()
	}
	views, err := s.store.PracticeAnswers(ctx, ps.ID)
	if err != nil {
		return PracticeResult{}, fmt.Errorf("load answers of session %d: %w", ps.ID, err)
	}
	return PracticeResult{Session: ps, Answers: views}, nil
}

// ListPracticeSessions returns the caller's practice sessions, newest first.
func (s *Service) ListPracticeSessions(ctx context.Context, caller *model.User) ([]model.PracticeSession, error) {
	if err := requireRole(caller, model.UserRoleStudent); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListPracticeSessions(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list practice sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.PracticeSession{}
	}
	return sessions, nil
}

func (s *Service) ownSession(ctx context.Context, caller *model.User, id int64) (model.PracticeSession, error) {
	if err := requireRole(caller, model.UserRoleStudent); err != nil {
		return model.PracticeSession{}, err
	}
	ps, err := s.store.GetPracticeSession(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ps, errSessionNotFound(id)
		}
		return ps, fmt.Errorf("get practice session %d: %w", id, err)
	}
	if ps.StudentID != caller.ID {
		return ps, errNotOwner()
	}
	return ps, nil
}
