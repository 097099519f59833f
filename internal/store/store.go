package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrActiveAttempt is returned when a student already has an
	// in-progress attempt for the same bundle.
	ErrActiveAttempt = errors.New("active attempt already exists")
	// ErrNotInProgress is returned when a finish races with another one and
	// the row is no longer in progress.
	ErrNotInProgress = errors.New("not in progress")
	// ErrDuplicate is returned when a unique name is already taken.
	ErrDuplicate = errors.New("duplicate")
	// ErrInUse is returned when a delete would orphan graded answers.
	ErrInUse = errors.New("referenced by graded answers")
)

// MissingQuestionError reports an answer for a question that no longer
// exists in the bank.
type MissingQuestionError struct {
	QuestionID int64
}

func (e *MissingQuestionError) Error() string {
	return fmt.Sprintf("question %d no longer exists", e.QuestionID)
}

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS student_classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		active INTEGER NOT NULL DEFAULT 1,
		class_id INTEGER,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (class_id) REFERENCES student_classes(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subjects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id INTEGER NOT NULL,
		type TEXT NOT NULL DEFAULT 'school',
		year INTEGER,
		text TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '{}',
		answer TEXT NOT NULL,
		FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_questions_subject ON questions(subject_id);

	CREATE TABLE IF NOT EXISTS exam_bundles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		time_limit_secs INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		recipe TEXT NOT NULL DEFAULT '{}',
		created_by INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (created_by) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_bundle_questions (
		bundle_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (bundle_id, question_id),
		FOREIGN KEY (bundle_id) REFERENCES exam_bundles(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exam_bundle_classes (
		bundle_id INTEGER NOT NULL,
		class_id INTEGER NOT NULL,
		PRIMARY KEY (bundle_id, class_id),
		FOREIGN KEY (bundle_id) REFERENCES exam_bundles(id) ON DELETE CASCADE,
		FOREIGN KEY (class_id) REFERENCES student_classes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exam_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		bundle_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		score REAL,
		FOREIGN KEY (student_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (bundle_id) REFERENCES exam_bundles(id) ON DELETE CASCADE
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_exam_attempts_active
		ON exam_attempts(student_id, bundle_id) WHERE status = 'in_progress';

	-- Questions shown when the attempt started; bundle edits do not touch it.
	CREATE TABLE IF NOT EXISTS exam_attempt_questions (
		attempt_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (attempt_id, question_id),
		FOREIGN KEY (attempt_id) REFERENCES exam_attempts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exam_attempt_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		selected_answer TEXT NOT NULL DEFAULT '',
		is_correct INTEGER NOT NULL DEFAULT 0,
		marks REAL NOT NULL DEFAULT 0,
		UNIQUE (attempt_id, question_id),
		FOREIGN KEY (attempt_id) REFERENCES exam_attempts(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE RESTRICT
	);

	CREATE TABLE IF NOT EXISTS practice_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		filter_subject_id INTEGER,
		filter_type TEXT,
		filter_year INTEGER,
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		score REAL,
		FOREIGN KEY (student_id) REFERENCES users(id) ON DELETE CASCADE
	);

	-- Snapshot of the questions drawn at start; no FK so that bank edits
	-- do not rewrite a running session.
	CREATE TABLE IF NOT EXISTS practice_session_questions (
		session_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES practice_sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS practice_session_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		selected_answer TEXT NOT NULL DEFAULT '',
		is_correct INTEGER NOT NULL DEFAULT 0,
		marks REAL NOT NULL DEFAULT 0,
		UNIQUE (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES practice_sessions(id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE RESTRICT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}
