package exam

import (
	"errors"
	"fmt"

	"github.com/pavelanni/schoolexam/internal/model"
)

// Kind classifies an Error for the caller.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindBadRequest Kind = "bad_request"
)

// Message IDs double as i18n keys.
const (
	MsgForbiddenRole         = "ForbiddenRole"
	MsgNotOwner              = "NotOwner"
	MsgNotEligible           = "NotEligible"
	MsgNoClass               = "NoClass"
	MsgBundleNotFound        = "BundleNotFound"
	MsgAttemptNotFound       = "AttemptNotFound"
	MsgSessionNotFound       = "SessionNotFound"
	MsgQuestionNotFound      = "QuestionNotFound"
	MsgSubjectNotFound       = "SubjectNotFound"
	MsgClassNotFound         = "ClassNotFound"
	MsgInsufficientQuestions = "InsufficientQuestions"
	MsgInvalidCount          = "InvalidCount"
	MsgNoPracticeQuestions   = "NoPracticeQuestions"
	MsgActiveAttempt         = "ActiveAttempt"
	MsgNotInProgress         = "NotInProgress"
	MsgStillInProgress       = "StillInProgress"
	MsgNotInBundle           = "QuestionNotInBundle"
	MsgNotInSession          = "QuestionNotInSession"
	MsgDuplicateAnswer       = "DuplicateAnswer"
)

// Error is a terminal, caller-facing failure. MessageID and Data select and
// fill a localized reason; Error() is the English fallback.
type Error struct {
	Kind      Kind
	MessageID string
	Data      map[string]any
	msg       string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, id string, data map[string]any, format string, args ...any) *Error {
	return &Error{Kind: kind, MessageID: id, Data: data, msg: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into an *Error if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func errForbiddenRole(role model.UserRole) *Error {
	return newError(KindForbidden, MsgForbiddenRole, map[string]any{"Role": role},
		"role %q is not allowed to perform this action", role)
}

func errNotOwner() *Error {
	return newError(KindForbidden, MsgNotOwner, nil, "this record belongs to another student")
}

func errNotEligible(bundleID int64) *Error {
	return newError(KindForbidden, MsgNotEligible, map[string]any{"BundleID": bundleID},
		"not eligible for exam bundle %d", bundleID)
}

func errNoClass() *Error {
	return newError(KindNotFound, MsgNoClass, nil, "student is not assigned to a class")
}

func errBundleNotFound(id int64) *Error {
	return newError(KindNotFound, MsgBundleNotFound, map[string]any{"BundleID": id},
		"exam bundle %d not found or inactive", id)
}

func errAttemptNotFound(id int64) *Error {
	return newError(KindNotFound, MsgAttemptNotFound, map[string]any{"AttemptID": id},
		"exam attempt %d not found", id)
}

func errSessionNotFound(id int64) *Error {
	return newError(KindNotFound, MsgSessionNotFound, map[string]any{"SessionID": id},
		"practice session %d not found", id)
}

func errQuestionNotFound(id int64) *Error {
	return newError(KindNotFound, MsgQuestionNotFound, map[string]any{"QuestionID": id},
		"question %d not found", id)
}

func errSubjectNotFound(id int64) *Error {
	return newError(KindBadRequest, MsgSubjectNotFound, map[string]any{"SubjectID": id},
		"subject %d not found", id)
}

func errClassNotFound(id int64) *Error {
	return newError(KindBadRequest, MsgClassNotFound, map[string]any{"ClassID": id},
		"class %d not found", id)
}

func errInsufficientQuestions(subjectID int64, requested, available int) *Error {
	return newError(KindBadRequest, MsgInsufficientQuestions,
		map[string]any{"SubjectID": subjectID, "Requested": requested, "Available": available},
		"subject %d has %d questions, %d requested", subjectID, available, requested)
}

func errInvalidCount(subjectID int64, count int) *Error {
	return newError(KindBadRequest, MsgInvalidCount, map[string]any{"SubjectID": subjectID, "Count": count},
		"question count for subject %d must be positive, got %d", subjectID, count)
}

func errNoPracticeQuestions() *Error {
	return newError(KindNotFound, MsgNoPracticeQuestions, nil, "No questions found matching your criteria")
}

func errActiveAttempt(bundleID int64) *Error {
	return newError(KindConflict, MsgActiveAttempt, map[string]any{"BundleID": bundleID},
		"already have an active attempt for exam bundle %d", bundleID)
}

func errNotInProgress(status model.AttemptStatus) *Error {
	return newError(KindConflict, MsgNotInProgress, map[string]any{"Status": status},
		"cannot submit: status is %s", status)
}

func errStillInProgress() *Error {
	return newError(KindBadRequest, MsgStillInProgress, nil, "still in progress")
}

func errNotInSet(msgID string, questionID int64) *Error {
	scope := "bundle"
	if msgID == MsgNotInSession {
		scope = "session"
	}
	return newError(KindBadRequest, msgID, map[string]any{"QuestionID": questionID},
		"question %d is not part of this %s", questionID, scope)
}

func errDuplicateAnswer(questionID int64) *Error {
	return newError(KindBadRequest, MsgDuplicateAnswer, map[string]any{"QuestionID": questionID},
		"duplicate answer for question %d", questionID)
}
