package exam

import (
	"context"
	"errors"
	"math/rand/v2"

	"github.com/pavelanni/schoolexam/internal/model"
	"github.com/pavelanni/schoolexam/internal/store"
)

// DefaultPracticeMaxItems caps the questions drawn into a practice session.
const DefaultPracticeMaxItems = 60

// Service runs the bundle, attempt and practice lifecycles on top of the store.
type Service struct {
	store       *store.Store
	sampler     *Sampler
	practiceMax int
}

// New returns a Service. rng may be nil for production use.
func New(st *store.Store, cfg model.ServerConfig, rng *rand.Rand) *Service {
	limit := cfg.PracticeMaxItems
	if limit <= 0 {
		limit = DefaultPracticeMaxItems
	}
	return &Service{
		store:       st,
		sampler:     NewSampler(st, rng),
		practiceMax: limit,
	}
}

// gradeSubmission validates answers against the allowed question set in
// submission order and grades each one.
func (s *Service) gradeSubmission(ctx context.Context, allowed []int64, answers []model.SubmittedAnswer, notInSetMsg string) ([]model.Answer, error) {
	members := make(map[int64]bool, len(allowed))
	for _, id := range allowed {
		members[id] = true
	}
	ids := make([]int64, 0, len(answers))
	for _, a := range answers {
		if members[a.QuestionID] {
			ids = append(ids, a.QuestionID)
		}
	}
	questions, err := s.store.GetQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(answers))
	graded := make([]model.Answer, 0, len(answers))
	for _, a := range answers {
		if !members[a.QuestionID] {
			return nil, errNotInSet(notInSetMsg, a.QuestionID)
		}
		if seen[a.QuestionID] {
			return nil, errDuplicateAnswer(a.QuestionID)
		}
		seen[a.QuestionID] = true
		q, ok := questions[a.QuestionID]
		if !ok {
			return nil, errQuestionNotFound(a.QuestionID)
		}
		correct, marks := Grade(q, a.Selected)
		graded = append(graded, model.Answer{
			QuestionID: a.QuestionID,
			Selected:   a.Selected,
			Correct:    correct,
			Marks:      marks,
		})
	}
	return graded, nil
}

func publicQuestions(qs []model.Question) []model.PublicQuestion {
	out := make([]model.PublicQuestion, len(qs))
	for i, q := range qs {
		out[i] = q.Public()
	}
	return out
}

// missingQuestion maps a question deleted between grading and saving to the
// NotFound error a stale read would have produced.
func missingQuestion(err error) error {
	var mq *store.MissingQuestionError
	if errors.As(err, &mq) {
		return errQuestionNotFound(mq.QuestionID)
	}
	return nil
}
