package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/schoolexam/internal/model"
	"github.com/pavelanni/schoolexam/internal/store"
)

// StartedAttempt is what a student receives when an exam starts. Questions
// carry no answer keys. Deadline is advisory and nil when the bundle has no
// time limit.
type StartedAttempt struct {
	Attempt          model.Attempt          `json:"attempt"`
	TimeLimitMinutes int                    `json:"time_limit_minutes"`
	Deadline         *time.Time             `json:"deadline,omitempty"`
	Questions        []model.PublicQuestion `json:"questions"`
}

// AttemptResult is a graded attempt with its answers for review.
type AttemptResult struct {
	Attempt model.Attempt      `json:"attempt"`
	Answers []model.AnswerView `json:"answers"`
}

// AvailableExams lists the active bundles the student's class may start.
func (s *Service) AvailableExams(ctx context.Context, caller *model.User) ([]model.ExamBundle, error) {
	if err := requireRole(caller, model.UserRoleStudent); err != nil {
		return nil, err
	}
	if caller.ClassID == nil {
		return nil, errNoClass()
	}
	bundles, err := s.store.ListActiveBundlesForClass(ctx, *caller.ClassID)
	if err != nil {
		return nil, fmt.Errorf("list bundles for class %d: %w", *caller.ClassID, err)
	}
	if bundles == nil {
		bundles = []model.ExamBundle{}
	}
	return bundles, nil
}

// StartExamAttempt opens a new attempt on a bundle for the calling student.
func (s *Service) StartExamAttempt(ctx context.Context, caller *model.User, bundleID int64) (StartedAttempt, error) {
	var out StartedAttempt
	if err := requireRole(caller, model.UserRoleStudent); err != nil {
		return out, err
	}
	b, err := s.getBundle(ctx, bundleID)
	if err != nil {
		return out, err
	}
	if !b.Active {
		return out, errBundleNotFound(bundleID)
	}
	if !IsEligible(caller, b) {
		return out, errNotEligible(bundleID)
	}

	questions, err := s.store.BundleQuestions(ctx, bundleID)
	if err != nil {
		return out, fmt.Errorf("load bundle questions: %w", err)
	}
	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}

	a, err := s.store.CreateAttempt(ctx, caller.ID, bundleID, ids)
	if err != nil {
		if errors.Is(err, store.ErrActiveAttempt) {
			return out, errActiveAttempt(bundleID)
		}
		return out, fmt.Errorf("create attempt: %w", err)
	}

	out = StartedAttempt{
		Attempt:          a,
		TimeLimitMinutes: b.TimeLimitMinutes(),
		Questions:        publicQuestions(questions),
	}
	if b.TimeLimit > 0 {
		deadline := a.StartedAt.Add(b.TimeLimit)
		out.Deadline = &deadline
	}
	return out, nil
}

// SubmitExamAttempt grades the answers and closes the attempt. It succeeds at
// most once per attempt.
func (s *Service) SubmitExamAttempt(ctx context.Context, caller *model.User, attemptID int64, answers []model.SubmittedAnswer) (model.Attempt, error) {
	a, err := s.ownAttempt(ctx, caller, attemptID)
	if err != nil {
		return a, err
	}
	if a.Status != model.StatusInProgress {
		return a, errNotInProgress(a.Status)
	}

	allowed, err := s.store.AttemptQuestionIDs(ctx, a.ID)
	if err != nil {
		return a, fmt.Errorf("load attempt questions: %w", err)
	}
	graded, err := s.gradeSubmission(ctx, allowed, answers, MsgNotInBundle)
	if err != nil {
		return a, err
	}

	if _, err := s.store.FinishAttempt(ctx, a.ID, model.StatusGraded, Total(graded), graded); err != nil {
		if errors.Is(err, store.ErrNotInProgress) {
			return a, s.attemptConflict(ctx, a.ID)
		}
		if e := missingQuestion(err); e != nil {
			return a, e
		}
		return a, fmt.Errorf("finish attempt %d: %w", a.ID, err)
	}
	return s.store.GetAttempt(ctx, a.ID)
}

// ExamAttemptResult returns a graded attempt with the correct answers.
func (s *Service) ExamAttemptResult(ctx context.Context, caller *model.User, attemptID int64) (AttemptResult, error) {
	a, err := s.ownAttempt(ctx, caller, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if a.Status == model.StatusInProgress {
		return AttemptResult{}, errStillInProgress()
	}
	views, err := s.store.AttemptAnswers(ctx, a.ID)
	if err != nil {
		return AttemptResult{}, fmt.Errorf("load answers of attempt %d: %w", a.ID, err)
	}
	return AttemptResult{Attempt: a, Answers: views}, nil
}

// ListExamAttempts returns the caller's attempts, newest first.
func (s *Service) ListExamAttempts(ctx context.Context, caller *model.User) ([]model.Attempt, error) {
	if err := requireRole(caller, model.UserRoleStudent); err != nil {
		return nil, err
	}
	attempts, err := s.store.ListAttemptsByStudent(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, nil
}

func (s *Service) ownAttempt(ctx context.Context, caller *model.User, id int64) (model.Attempt, error) {
	if err := requireRole(caller, model.UserRoleStudent); err != nil {
		return model.Attempt{}, err
	}
	a, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, errAttemptNotFound(id)
		}
		return a, fmt.Errorf("get attempt %d: %w", id, err)
	}
	if a.StudentID != caller.ID {
		return a, errNotOwner()
	}
	return a, nil
}

// attemptConflict reports the status that won a lost submit race.
func (s *Service) attemptConflict(ctx context.Context, id int64) error {
	a, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return errNotInProgress(model.StatusGraded)
	}
	return errNotInProgress(a.Status)
}
