package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleTeacher UserRole = "teacher"
	UserRoleAdmin   UserRole = "admin"
	// UserRoleUser is a plain account with no exam privileges.
	UserRoleUser UserRole = "user"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStudent, UserRoleTeacher, UserRoleAdmin, UserRoleUser:
		return true
	}
	return false
}

// User represents a system user. ClassID is only meaningful for students.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	ClassID      *int64    `json:"class_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionType tags where a question comes from.
type QuestionType string

const (
	QuestionTypeSchool QuestionType = "school"
	QuestionTypeJAMB   QuestionType = "jamb"
	QuestionTypeWAEC   QuestionType = "waec"
	QuestionTypeNECO   QuestionType = "neco"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeSchool, QuestionTypeJAMB, QuestionTypeWAEC, QuestionTypeNECO:
		return true
	}
	return false
}

// Subject groups questions.
type Subject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// StudentClass is a class (form, grade) students belong to.
type StudentClass struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Question is a bank question including its answer key.
// Use Public before handing a question to a student mid-attempt.
type Question struct {
	ID        int64             `json:"id"`
	SubjectID int64             `json:"subject_id"`
	Type      QuestionType      `json:"type"`
	Year      *int              `json:"year,omitempty"`
	Text      string            `json:"question_text"`
	Options   map[string]string `json:"options"`
	Answer    string            `json:"answer"`
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	ID        int64             `json:"id"`
	SubjectID int64             `json:"subject_id"`
	Type      QuestionType      `json:"type"`
	Year      *int              `json:"year,omitempty"`
	Text      string            `json:"question_text"`
	Options   map[string]string `json:"options"`
}

// Public strips the answer key.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:        q.ID,
		SubjectID: q.SubjectID,
		Type:      q.Type,
		Year:      q.Year,
		Text:      q.Text,
		Options:   q.Options,
	}
}

// Recipe maps a subject ID to the number of questions drawn from it.
type Recipe map[int64]int

// Total returns the number of questions the recipe asks for.
func (r Recipe) Total() int {
	n := 0
	for _, c := range r {
		n += c
	}
	return n
}

// ExamBundle is a persisted exam definition.
type ExamBundle struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	TimeLimit   time.Duration `json:"-"`
	Active      bool          `json:"is_active"`
	Recipe      Recipe        `json:"subject_combinations"`
	QuestionIDs []int64       `json:"question_ids"`
	ClassIDs    []int64       `json:"class_ids"`
	CreatedBy   int64         `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TimeLimitMinutes is the time limit in whole minutes, for JSON payloads.
func (b ExamBundle) TimeLimitMinutes() int {
	return int(b.TimeLimit / time.Minute)
}

// HasClass reports whether classID is among the bundle's eligible classes.
func (b ExamBundle) HasClass(classID int64) bool {
	for _, id := range b.ClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

// AttemptStatus is the lifecycle state of an exam attempt or practice session.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	// StatusCompleted is the terminal state of practice sessions. Exam
	// attempts never reach it.
	StatusCompleted AttemptStatus = "completed"
	StatusGraded    AttemptStatus = "graded"
)

// Attempt is one student's pass through an exam bundle.
type Attempt struct {
	ID          int64         `json:"id"`
	StudentID   int64         `json:"student_id"`
	BundleID    int64         `json:"exam_bundle_id"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"start_time"`
	SubmittedAt *time.Time    `json:"submission_time,omitempty"`
	Score       *float64      `json:"score,omitempty"`
}

// PracticeFilter selects practice questions. Nil fields impose no constraint.
type PracticeFilter struct {
	SubjectID *int64        `json:"subject_id,omitempty"`
	Type      *QuestionType `json:"question_type,omitempty"`
	Year      *int          `json:"year,omitempty"`
}

// PracticeSession is an untimed, ungated practice run.
type PracticeSession struct {
	ID          int64          `json:"id"`
	StudentID   int64          `json:"student_id"`
	Status      AttemptStatus  `json:"status"`
	Filter      PracticeFilter `json:"filter"`
	QuestionIDs []int64        `json:"question_ids"`
	StartedAt   time.Time      `json:"start_time"`
	SubmittedAt *time.Time     `json:"submission_time,omitempty"`
	Score       *float64       `json:"score,omitempty"`
}

// Answer is a graded answer to one question. The parent is either an
// attempt or a practice session depending on the table it lives in.
type Answer struct {
	ID         int64   `json:"id"`
	ParentID   int64   `json:"-"`
	QuestionID int64   `json:"question_id"`
	Selected   string  `json:"selected_answer"`
	Correct    bool    `json:"is_correct"`
	Marks      float64 `json:"marks_awarded"`
}

// AnswerView is an answer with the correct answer joined from the bank at
// read time, so later edits to the question are reflected.
type AnswerView struct {
	Answer
	CorrectAnswer string `json:"correct_answer"`
}

// SubmittedAnswer is one entry of a student's submission. A number or
// boolean selected_answer is kept in its JSON text form, so 1 grades as "1".
type SubmittedAnswer struct {
	QuestionID int64  `json:"question_id" validate:"required,gt=0"`
	Selected   string `json:"selected_answer"`
}

func (a *SubmittedAnswer) UnmarshalJSON(data []byte) error {
	var raw struct {
		QuestionID int64           `json:"question_id"`
		Selected   json.RawMessage `json:"selected_answer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	selected, err := scalarText(raw.Selected)
	if err != nil {
		return err
	}
	a.QuestionID = raw.QuestionID
	a.Selected = selected
	return nil
}

// scalarText renders a JSON scalar as text. Strings are unquoted and null or
// a missing value is empty.
func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		return "", fmt.Errorf("selected_answer must be a string, number or boolean")
	}
	return string(raw), nil
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Subject string            `json:"subject" validate:"required"`
	Type    QuestionType      `json:"type" validate:"omitempty,oneof=school jamb waec neco"`
	Year    *int              `json:"year,omitempty"`
	Text    string            `json:"question_text" validate:"required"`
	Options map[string]string `json:"options"`
	Answer  string            `json:"answer" validate:"required"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Lang             string
	PracticeMaxItems int
}
