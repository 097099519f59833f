package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pavelanni/schoolexam/internal/model"
)

// BundleInput is the editable part of an exam bundle. Update replaces all of
// it, so an empty Recipe or ClassIDs clears that set.
type BundleInput struct {
	Name      string
	TimeLimit time.Duration
	Active    bool
	Recipe    model.Recipe
	ClassIDs  []int64
}

// CreateBundle samples the recipe and persists a new bundle.
func (s *Service) CreateBundle(ctx context.Context, caller *model.User, in BundleInput) (model.ExamBundle, error) {
	if err := requireRole(caller, model.UserRoleAdmin, model.UserRoleTeacher); err != nil {
		return model.ExamBundle{}, err
	}
	b, err := s.resolveBundle(ctx, in)
	if err != nil {
		return model.ExamBundle{}, err
	}
	b.CreatedBy = caller.ID
	id, err := s.store.CreateBundle(ctx, b)
	if err != nil {
		return model.ExamBundle{}, fmt.Errorf("create bundle: %w", err)
	}
	return s.store.GetBundle(ctx, id)
}

// UpdateBundle re-samples the recipe and replaces the bundle's questions and
// classes.
func (s *Service) UpdateBundle(ctx context.Context, caller *model.User, id int64, in BundleInput) (model.ExamBundle, error) {
	if err := requireRole(caller, model.UserRoleAdmin, model.UserRoleTeacher); err != nil {
		return model.ExamBundle{}, err
	}
	if _, err := s.getBundle(ctx, id); err != nil {
		return model.ExamBundle{}, err
	}
	b, err := s.resolveBundle(ctx, in)
	if err != nil {
		return model.ExamBundle{}, err
	}
	b.ID = id
	if err := s.store.ReplaceBundle(ctx, b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ExamBundle{}, errBundleNotFound(id)
		}
		return model.ExamBundle{}, fmt.Errorf("replace bundle %d: %w", id, err)
	}
	return s.store.GetBundle(ctx, id)
}

// DeleteBundle removes a bundle together with its attempts.
func (s *Service) DeleteBundle(ctx context.Context, caller *model.User, id int64) error {
	if err := requireRole(caller, model.UserRoleAdmin, model.UserRoleTeacher); err != nil {
		return err
	}
	if err := s.store.DeleteBundle(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errBundleNotFound(id)
		}
		return fmt.Errorf("delete bundle %d: %w", id, err)
	}
	return nil
}

// GetBundle returns a bundle by ID.
func (s *Service) GetBundle(ctx context.Context, id int64) (model.ExamBundle, error) {
	return s.getBundle(ctx, id)
}

// ListBundles returns every bundle, newest first.
func (s *Service) ListBundles(ctx context.Context) ([]model.ExamBundle, error) {
	bundles, err := s.store.ListBundles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	if bundles == nil {
		bundles = []model.ExamBundle{}
	}
	return bundles, nil
}

func (s *Service) getBundle(ctx context.Context, id int64) (model.ExamBundle, error) {
	b, err := s.store.GetBundle(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, errBundleNotFound(id)
		}
		return b, fmt.Errorf("get bundle %d: %w", id, err)
	}
	return b, nil
}

// resolveBundle validates the input and samples its questions. Nothing is
// written, so a failure leaves no trace.
func (s *Service) resolveBundle(ctx context.Context, in BundleInput) (model.ExamBundle, error) {
	recipe := in.Recipe
	if recipe == nil {
		recipe = model.Recipe{}
	}
	questionIDs, err := s.sampler.Sample(ctx, recipe)
	if err != nil {
		return model.ExamBundle{}, err
	}

	classIDs := slices.Clone(in.ClassIDs)
	slices.Sort(classIDs)
	classIDs = slices.Compact(classIDs)
	for _, id := range classIDs {
		if _, err := s.store.GetClass(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.ExamBundle{}, errClassNotFound(id)
			}
			return model.ExamBundle{}, fmt.Errorf("get class %d: %w", id, err)
		}
	}

	return model.ExamBundle{
		Name:        in.Name,
		TimeLimit:   in.TimeLimit,
		Active:      in.Active,
		Recipe:      recipe,
		QuestionIDs: questionIDs,
		ClassIDs:    classIDs,
	}, nil
}
