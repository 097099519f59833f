package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/schoolexam/internal/model"
)

// ExportResults builds export-ready results for every bundle. Attempts that
// are still in progress are skipped but still count toward attempt numbers.
func (s *Store) ExportResults(ctx context.Context) (model.ResultsExport, error) {
	out := model.ResultsExport{GeneratedAt: time.Now().UTC(), Bundles: []model.BundleResults{}}

	bundles, err := s.ListBundles(ctx)
	if err != nil {
		return out, fmt.Errorf("list bundles: %w", err)
	}
	users := make(map[int64]*model.User)

	for _, b := range bundles {
		br := model.BundleResults{
			BundleID:     b.ID,
			Name:         b.Name,
			NumQuestions: len(b.QuestionIDs),
			Results:      []model.StudentResult{},
		}

		attempts, err := s.ListAttemptsByBundle(ctx, b.ID)
		if err != nil {
			return out, fmt.Errorf("list attempts of bundle %d: %w", b.ID, err)
		}

		// Track attempt count per student for attempt_number.
		studentAttemptCount := make(map[int64]int)

		for _, a := range attempts {
			studentAttemptCount[a.StudentID]++
			if a.Status == model.StatusInProgress {
				continue
			}

			user, ok := users[a.StudentID]
			if !ok {
				if user, err = s.GetUserByID(ctx, a.StudentID); err != nil {
					return out, fmt.Errorf("get user %d: %w", a.StudentID, err)
				}
				users[a.StudentID] = user
			}

			questions, err := s.exportAnswers(ctx, a.ID)
			if err != nil {
				return out, fmt.Errorf("get answers of attempt %d: %w", a.ID, err)
			}

			sr := model.StudentResult{
				AttemptNumber: studentAttemptCount[a.StudentID],
				Status:        a.Status,
				StartedAt:     a.StartedAt,
				SubmittedAt:   a.SubmittedAt,
				Questions:     questions,
			}
			if user != nil {
				sr.Username = user.Username
				sr.DisplayName = user.DisplayName
			}
			if a.Score != nil {
				sr.Score = *a.Score
			}
			br.Results = append(br.Results, sr)
		}
		out.Bundles = append(out.Bundles, br)
	}
	return out, nil
}

func (s *Store) exportAnswers(ctx context.Context, attemptID int64) ([]model.QuestionResult, error) {
	views, err := s.AttemptAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(views))
	for i, v := range views {
		ids[i] = v.QuestionID
	}
	questions, err := s.GetQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	results := make([]model.QuestionResult, 0, len(views))
	for _, v := range views {
		results = append(results, model.QuestionResult{
			QuestionID:    v.QuestionID,
			Text:          questions[v.QuestionID].Text,
			Selected:      v.Selected,
			CorrectAnswer: v.CorrectAnswer,
			Correct:       v.Correct,
			Marks:         v.Marks,
		})
	}
	return results, nil
}
