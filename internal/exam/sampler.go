package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/pavelanni/schoolexam/internal/model"
)

type questionSource interface {
	GetSubject(ctx context.Context, id int64) (model.Subject, error)
	QuestionIDsBySubject(ctx context.Context, subjectID int64) ([]int64, error)
}

// Sampler draws bundle questions per subject, uniformly and without
// replacement.
type Sampler struct {
	src questionSource
	rng *rand.Rand
}

// NewSampler returns a sampler backed by src. A nil rng uses the unseeded
// global source; an explicit rng is not safe for concurrent use.
func NewSampler(src questionSource, rng *rand.Rand) *Sampler {
	return &Sampler{src: src, rng: rng}
}

// Sample resolves a recipe into question IDs. Subjects are visited in
// ascending ID order, so the result is grouped by subject.
func (s *Sampler) Sample(ctx context.Context, recipe model.Recipe) ([]int64, error) {
	out := make([]int64, 0, recipe.Total())
	for _, subjectID := range slices.Sorted(maps.Keys(recipe)) {
		count := recipe[subjectID]
		if count <= 0 {
			return nil, errInvalidCount(subjectID, count)
		}
		if _, err := s.src.GetSubject(ctx, subjectID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errSubjectNotFound(subjectID)
			}
			return nil, fmt.Errorf("get subject %d: %w", subjectID, err)
		}
		ids, err := s.src.QuestionIDsBySubject(ctx, subjectID)
		if err != nil {
			return nil, fmt.Errorf("list questions of subject %d: %w", subjectID, err)
		}
		if len(ids) < count {
			return nil, errInsufficientQuestions(subjectID, count, len(ids))
		}
		out = append(out, s.draw(ids, count)...)
	}
	return out, nil
}

// draw returns k distinct elements of ids chosen uniformly at random.
func (s *Sampler) draw(ids []int64, k int) []int64 {
	picked := slices.Clone(ids)
	shuffle := rand.Shuffle
	if s.rng != nil {
		shuffle = s.rng.Shuffle
	}
	shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return picked[:min(k, len(picked))]
}
