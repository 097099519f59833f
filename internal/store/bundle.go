package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/schoolexam/internal/model"
)

// CreateBundle stores a bundle with its question and class links in one
// transaction and returns its ID.
func (s *Store) CreateBundle(ctx context.Context, b model.ExamBundle) (int64, error) {
	recipe, err := json.Marshal(b.Recipe)
	if err != nil {
		return 0, fmt.Errorf("encode recipe: %w", err)
	}
	now := time.Now().UTC()

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO exam_bundles (name, time_limit_secs, active, recipe, created_by, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.Name, int64(b.TimeLimit/time.Second), b.Active, string(recipe), b.CreatedBy, now, now,
		)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return insertBundleLinks(ctx, tx, id, b.QuestionIDs, b.ClassIDs)
	})
	if err != nil {
		return 0, err
	}
	slog.Info("created exam bundle", "id", id, "name", b.Name, "questions", len(b.QuestionIDs), "classes", len(b.ClassIDs))
	return id, nil
}

// ReplaceBundle overwrites a bundle's fields and replaces, not merges, its
// question and class links.
func (s *Store) ReplaceBundle(ctx context.Context, b model.ExamBundle) error {
	recipe, err := json.Marshal(b.Recipe)
	if err != nil {
		return fmt.Errorf("encode recipe: %w", err)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE exam_bundles SET name = ?, time_limit_secs = ?, active = ?, recipe = ?, updated_at = ?
			 WHERE id = ?`,
			b.Name, int64(b.TimeLimit/time.Second), b.Active, string(recipe), time.Now().UTC(), b.ID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM exam_bundle_questions WHERE bundle_id = ?`, b.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM exam_bundle_classes WHERE bundle_id = ?`, b.ID); err != nil {
			return err
		}
		return insertBundleLinks(ctx, tx, b.ID, b.QuestionIDs, b.ClassIDs)
	})
	if err != nil {
		return err
	}
	slog.Info("replaced exam bundle", "id", b.ID, "questions", len(b.QuestionIDs), "classes", len(b.ClassIDs))
	return nil
}

func insertBundleLinks(ctx context.Context, tx *sql.Tx, bundleID int64, questionIDs, classIDs []int64) error {
	for i, qID := range questionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exam_bundle_questions (bundle_id, question_id, position) VALUES (?, ?, ?)`,
			bundleID, qID, i,
		); err != nil {
			return fmt.Errorf("link question %d: %w", qID, err)
		}
	}
	for _, cID := range classIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exam_bundle_classes (bundle_id, class_id) VALUES (?, ?)`,
			bundleID, cID,
		); err != nil {
			return fmt.Errorf("link class %d: %w", cID, err)
		}
	}
	return nil
}

// DeleteBundle removes a bundle. Attempts and their answers go with it.
func (s *Store) DeleteBundle(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exam_bundles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	slog.Info("deleted exam bundle", "id", id)
	return nil
}

// GetBundle returns a bundle by ID with its question and class IDs.
func (s *Store) GetBundle(ctx context.Context, id int64) (model.ExamBundle, error) {
	b, err := scanBundle(s.db.QueryRowContext(ctx,
		`SELECT `+bundleColumns+` FROM exam_bundles WHERE id = ?`, id))
	if err != nil {
		return b, err
	}
	if err := s.loadBundleLinks(ctx, &b); err != nil {
		return b, err
	}
	return b, nil
}

// ListBundles returns all bundles, newest first.
func (s *Store) ListBundles(ctx context.Context) ([]model.ExamBundle, error) {
	return s.listBundles(ctx, `SELECT `+bundleColumns+` FROM exam_bundles ORDER BY id DESC`)
}

// ListActiveBundlesForClass returns active bundles a class is eligible for.
func (s *Store) ListActiveBundlesForClass(ctx context.Context, classID int64) ([]model.ExamBundle, error) {
	return s.listBundles(ctx,
		`SELECT `+bundleColumns+` FROM exam_bundles
		 WHERE active = 1 AND id IN (SELECT bundle_id FROM exam_bundle_classes WHERE class_id = ?)
		 ORDER BY id DESC`, classID)
}

// BundleQuestions returns the bundle's questions in sampling order.
func (s *Store) BundleQuestions(ctx context.Context, bundleID int64) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, q.subject_id, q.type, q.year, q.text, q.options, q.answer
		 FROM exam_bundle_questions bq JOIN questions q ON q.id = bq.question_id
		 WHERE bq.bundle_id = ? ORDER BY bq.position`, bundleID)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

const bundleColumns = `id, name, time_limit_secs, active, recipe, created_by, created_at, updated_at`

func scanBundle(row interface{ Scan(...any) error }) (model.ExamBundle, error) {
	var b model.ExamBundle
	var secs int64
	var recipe string
	if err := row.Scan(&b.ID, &b.Name, &secs, &b.Active, &recipe, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	b.TimeLimit = time.Duration(secs) * time.Second
	if err := json.Unmarshal([]byte(recipe), &b.Recipe); err != nil {
		return b, fmt.Errorf("decode recipe of bundle %d: %w", b.ID, err)
	}
	return b, nil
}

func (s *Store) listBundles(ctx context.Context, query string, args ...any) ([]model.ExamBundle, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var bundles []model.ExamBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bundles = append(bundles, b)
	}
	// Close before loading links: the pool has a single connection.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range bundles {
		if err := s.loadBundleLinks(ctx, &bundles[i]); err != nil {
			return nil, err
		}
	}
	return bundles, nil
}

func (s *Store) loadBundleLinks(ctx context.Context, b *model.ExamBundle) error {
	var err error
	b.QuestionIDs, err = s.queryIDs(ctx,
		`SELECT question_id FROM exam_bundle_questions WHERE bundle_id = ? ORDER BY position`, b.ID)
	if err != nil {
		return err
	}
	b.ClassIDs, err = s.queryIDs(ctx,
		`SELECT class_id FROM exam_bundle_classes WHERE bundle_id = ? ORDER BY class_id`, b.ID)
	return err
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
