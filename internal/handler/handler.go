package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/schoolexam/internal/exam"
	appI18n "github.com/pavelanni/schoolexam/internal/i18n"
	"github.com/pavelanni/schoolexam/internal/model"
	"github.com/pavelanni/schoolexam/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	exam     *exam.Service
	config   model.ServerConfig
	validate *validator.Validate
}

// New creates a new Handler.
func New(s *store.Store, svc *exam.Service, cfg model.ServerConfig) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation errors.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{store: s, exam: svc, config: cfg, validate: v}
}

// Routes registers all HTTP routes under /api/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(appI18n.Middleware(h.config.Lang))

		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/auth/logout", h.handleLogout)
			r.Get("/auth/me", h.handleMe)

			r.Get("/bundles", h.handleListBundles)
			r.Get("/bundles/{bundleID}", h.handleGetBundle)

			// Question bank and bundle authoring.
			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin, model.UserRoleTeacher))
				r.Post("/subjects", h.handleCreateSubject)
				r.Get("/subjects", h.handleListSubjects)
				r.Get("/subjects/{subjectID}", h.handleGetSubject)
				r.Put("/subjects/{subjectID}", h.handleUpdateSubject)
				r.Delete("/subjects/{subjectID}", h.handleDeleteSubject)
				r.Post("/classes", h.handleCreateClass)
				r.Get("/classes", h.handleListClasses)
				r.Post("/questions", h.handleCreateQuestion)
				r.Post("/questions/import", h.handleImportQuestions)
				r.Get("/questions", h.handleListQuestions)
				r.Get("/questions/{questionID}", h.handleGetQuestion)
				r.Put("/questions/{questionID}", h.handleUpdateQuestion)
				r.Delete("/questions/{questionID}", h.handleDeleteQuestion)
				r.Post("/bundles", h.handleCreateBundle)
				r.Put("/bundles/{bundleID}", h.handleUpdateBundle)
				r.Delete("/bundles/{bundleID}", h.handleDeleteBundle)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
				r.Put("/users/{userID}/class", h.handleSetUserClass)
			})

			// Role checks for student routes happen in the exam service.
			r.Route("/student", func(r chi.Router) {
				r.Get("/exams", h.handleAvailableExams)
				r.Post("/exams/{bundleID}/start", h.handleStartExam)
				r.Get("/attempts", h.handleListAttempts)
				r.Post("/attempts/{attemptID}/submit", h.handleSubmitAttempt)
				r.Get("/attempts/{attemptID}/result", h.handleAttemptResult)
				r.Post("/practice/start", h.handleStartPractice)
				r.Get("/practice", h.handleListPractice)
				r.Post("/practice/{sessionID}/submit", h.handleSubmitPractice)
				r.Get("/practice/{sessionID}/result", h.handlePracticeResult)
			})
		})
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError writes a localized error body. fallback is used when msgID has
// no translation.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string, data map[string]any, fallback string) {
	writeJSON(w, status, errorResponse{
		Error: appI18n.Message(r.Context(), msgID, data, fallback),
		Code:  msgID,
	})
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, r, http.StatusInternalServerError, "InternalError", nil, "internal error")
}

var kindStatus = map[exam.Kind]int{
	exam.KindNotFound:   http.StatusNotFound,
	exam.KindForbidden:  http.StatusForbidden,
	exam.KindConflict:   http.StatusConflict,
	exam.KindBadRequest: http.StatusBadRequest,
}

// writeServiceError maps exam errors to their status; anything else is a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := exam.AsError(err); ok {
		status, known := kindStatus[e.Kind]
		if !known {
			status = http.StatusInternalServerError
		}
		writeError(w, r, status, e.MessageID, e.Data, e.Error())
		return
	}
	writeInternalError(w, r, err)
}

// decodeJSON reads and validates a request body. An empty body decodes to
// the zero value when allowEmpty is set. It writes the error response itself
// and reports whether the caller should continue.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", nil, "invalid request body")
		return false
	}
	return h.validStruct(w, r, dst)
}

func (h *Handler) validStruct(w http.ResponseWriter, r *http.Request, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		// Drop the Go struct name from "loginRequest.username".
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		data := map[string]any{"Field": field, "Tag": fe.Tag()}
		writeError(w, r, http.StatusBadRequest, "ValidationFailed", data, fe.Error())
		return false
	}
	writeError(w, r, http.StatusBadRequest, "InvalidRequest", nil, err.Error())
	return false
}

// pathID parses a positive int64 path parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "InvalidID", map[string]any{"Param": name}, "invalid "+name)
		return 0, false
	}
	return id, true
}
