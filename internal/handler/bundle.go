package handler

import (
	"net/http"
	"time"

	"github.com/pavelanni/schoolexam/internal/exam"
	"github.com/pavelanni/schoolexam/internal/model"
)

type bundleRequest struct {
	Name                string       `json:"name" validate:"required,max=200"`
	TimeLimit           int          `json:"time_limit" validate:"gte=0"`
	Active              *bool        `json:"is_active"`
	SubjectCombinations model.Recipe `json:"subject_combinations"`
	ClassIDs            []int64      `json:"class_ids" validate:"dive,gt=0"`
}

func (req bundleRequest) input() exam.BundleInput {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return exam.BundleInput{
		Name:      req.Name,
		TimeLimit: time.Duration(req.TimeLimit) * time.Minute,
		Active:    active,
		Recipe:    req.SubjectCombinations,
		ClassIDs:  req.ClassIDs,
	}
}

// bundleResponse adds the time limit in minutes to the stored bundle.
type bundleResponse struct {
	model.ExamBundle
	TimeLimitMinutes int `json:"time_limit"`
}

func newBundleResponse(b model.ExamBundle) bundleResponse {
	return bundleResponse{ExamBundle: b, TimeLimitMinutes: b.TimeLimitMinutes()}
}

func newBundleResponses(bundles []model.ExamBundle) []bundleResponse {
	out := make([]bundleResponse, len(bundles))
	for i, b := range bundles {
		out[i] = newBundleResponse(b)
	}
	return out
}

func (h *Handler) handleCreateBundle(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	b, err := h.exam.CreateBundle(r.Context(), model.UserFromContext(r.Context()), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBundleResponse(b))
}

func (h *Handler) handleUpdateBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bundleID")
	if !ok {
		return
	}
	var req bundleRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	b, err := h.exam.UpdateBundle(r.Context(), model.UserFromContext(r.Context()), id, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBundleResponse(b))
}

func (h *Handler) handleDeleteBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bundleID")
	if !ok {
		return
	}
	if err := h.exam.DeleteBundle(r.Context(), model.UserFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "bundleID")
	if !ok {
		return
	}
	b, err := h.exam.GetBundle(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBundleResponse(b))
}

func (h *Handler) handleListBundles(w http.ResponseWriter, r *http.Request) {
	bundles, err := h.exam.ListBundles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBundleResponses(bundles))
}
