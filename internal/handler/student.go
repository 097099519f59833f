package handler

import (
	"net/http"

	"github.com/pavelanni/schoolexam/internal/model"
)

type submitRequest struct {
	Answers []model.SubmittedAnswer `json:"answers" validate:"dive"`
}

type practiceRequest struct {
	SubjectID *int64              `json:"subject_id" validate:"omitempty,gt=0"`
	Type      *model.QuestionType `json:"question_type" validate:"omitempty,oneof=school jamb waec neco"`
	Year      *int                `json:"year"`
}

func (h *Handler) handleAvailableExams(w http.ResponseWriter, r *http.Request) {
	bundles, err := h.exam.AvailableExams(r.Context(), model.UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBundleResponses(bundles))
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	bundleID, ok := pathID(w, r, "bundleID")
	if !ok {
		return
	}
	started, err := h.exam.StartExamAttempt(r.Context(), model.UserFromContext(r.Context()), bundleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.exam.ListExamAttempts(r.Context(), model.UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "attemptID")
	if !ok {
		return
	}
	var req submitRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	a, err := h.exam.SubmitExamAttempt(r.Context(), model.UserFromContext(r.Context()), id, req.Answers)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleAttemptResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "attemptID")
	if !ok {
		return
	}
	result, err := h.exam.ExamAttemptResult(r.Context(), model.UserFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStartPractice(w http.ResponseWriter, r *http.Request) {
	var req practiceRequest
	if !h.decodeJSON(w, r, &req, true) {
		return
	}
	filter := model.PracticeFilter{SubjectID: req.SubjectID, Type: req.Type, Year: req.Year}
	started, err := h.exam.StartPracticeSession(r.Context(), model.UserFromContext(r.Context()), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

func (h *Handler) handleListPractice(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.exam.ListPracticeSessions(r.Context(), model.UserFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleSubmitPractice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	var req submitRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	ps, err := h.exam.SubmitPracticeSession(r.Context(), model.UserFromContext(r.Context()), id, req.Answers)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handler) handlePracticeResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "sessionID")
	if !ok {
		return
	}
	result, err := h.exam.PracticeSessionResult(r.Context(), model.UserFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
