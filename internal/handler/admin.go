package handler

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/schoolexam/internal/i18n"
	"github.com/pavelanni/schoolexam/internal/model"
	"github.com/pavelanni/schoolexam/internal/store"
)

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,min=3,max=64"`
	DisplayName string         `json:"display_name" validate:"max=128"`
	Password    string         `json:"password" validate:"required,min=6"`
	Role        model.UserRole `json:"role" validate:"required,oneof=admin teacher student user"`
	ClassID     *int64         `json:"class_id" validate:"omitempty,gt=0"`
}

type setClassRequest struct {
	ClassID *int64 `json:"class_id" validate:"omitempty,gt=0"`
}

type nameRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type questionRequest struct {
	SubjectID int64              `json:"subject_id" validate:"required,gt=0"`
	Type      model.QuestionType `json:"type" validate:"omitempty,oneof=school jamb waec neco"`
	Year      *int               `json:"year" validate:"omitempty,gt=0"`
	Text      string             `json:"question_text" validate:"required"`
	Options   map[string]string  `json:"options"`
	Answer    string             `json:"answer" validate:"required"`
}

type importRequest struct {
	Questions []model.QuestionImport `json:"questions" validate:"required,dive"`
}

type importResponse struct {
	Imported int    `json:"imported"`
	Message  string `json:"message"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	if req.ClassID != nil && !h.classExists(w, r, *req.ClassID) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	id, err := h.store.CreateUser(r.Context(), model.User{
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
		ClassID:      req.ClassID,
	})
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, r, http.StatusConflict, "NameTaken", map[string]any{"Name": req.Username}, "username already taken")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if !h.userExists(w, r, id) {
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		writeInternalError(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	slog.Info("toggled user active", "id", id, "active", user.Active)
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleSetUserClass(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req setClassRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	if !h.userExists(w, r, id) {
		return
	}
	if req.ClassID != nil && !h.classExists(w, r, *req.ClassID) {
		return
	}
	if err := h.store.SetUserClass(r.Context(), id, req.ClassID); err != nil {
		writeInternalError(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) userExists(w http.ResponseWriter, r *http.Request, id int64) bool {
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return false
	}
	if user == nil {
		writeError(w, r, http.StatusNotFound, "UserNotFound", map[string]any{"UserID": id}, "user not found")
		return false
	}
	return true
}

func (h *Handler) classExists(w http.ResponseWriter, r *http.Request, id int64) bool {
	_, err := h.store.GetClass(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, r, http.StatusBadRequest, "ClassNotFound", map[string]any{"ClassID": id}, "class not found")
		return false
	}
	if err != nil {
		writeInternalError(w, r, err)
		return false
	}
	return true
}

func (h *Handler) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	id, err := h.store.CreateSubject(r.Context(), req.Name)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, r, http.StatusConflict, "NameTaken", map[string]any{"Name": req.Name}, "subject already exists")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.Subject{ID: id, Name: req.Name})
}

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListSubjects(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if subjects == nil {
		subjects = []model.Subject{}
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *Handler) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "subjectID")
	if !ok {
		return
	}
	sub, err := h.store.GetSubject(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeSubjectNotFound(w, r, http.StatusNotFound, id)
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) handleUpdateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "subjectID")
	if !ok {
		return
	}
	var req nameRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	err := h.store.UpdateSubject(r.Context(), id, req.Name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeSubjectNotFound(w, r, http.StatusNotFound, id)
		return
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, r, http.StatusConflict, "NameTaken", map[string]any{"Name": req.Name}, "subject already exists")
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Subject{ID: id, Name: req.Name})
}

func (h *Handler) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "subjectID")
	if !ok {
		return
	}
	err := h.store.DeleteSubject(r.Context(), id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeSubjectNotFound(w, r, http.StatusNotFound, id)
		return
	case errors.Is(err, store.ErrInUse):
		writeError(w, r, http.StatusConflict, "SubjectInUse", map[string]any{"SubjectID": id}, "subject has graded answers")
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSubjectNotFound(w http.ResponseWriter, r *http.Request, status int, id int64) {
	writeError(w, r, status, "SubjectNotFound", map[string]any{"SubjectID": id}, "subject not found")
}

func (h *Handler) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	id, err := h.store.CreateClass(r.Context(), req.Name)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, r, http.StatusConflict, "NameTaken", map[string]any{"Name": req.Name}, "class already exists")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.StudentClass{ID: id, Name: req.Name})
}

func (h *Handler) handleListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.store.ListClasses(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if classes == nil {
		classes = []model.StudentClass{}
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	if !h.subjectExists(w, r, req.SubjectID) {
		return
	}
	id, err := h.store.InsertQuestion(r.Context(), model.Question{
		SubjectID: req.SubjectID,
		Type:      req.Type,
		Year:      req.Year,
		Text:      req.Text,
		Options:   req.Options,
		Answer:    req.Answer,
	})
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	q, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	var req questionRequest
	if !h.decodeJSON(w, r, &req, false) {
		return
	}
	if !h.subjectExists(w, r, req.SubjectID) {
		return
	}
	err := h.store.UpdateQuestion(r.Context(), model.Question{
		ID:        id,
		SubjectID: req.SubjectID,
		Type:      req.Type,
		Year:      req.Year,
		Text:      req.Text,
		Options:   req.Options,
		Answer:    req.Answer,
	})
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, r, http.StatusNotFound, "QuestionNotFound", map[string]any{"QuestionID": id}, "question not found")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	q, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	slog.Info("updated question", "id", id)
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) subjectExists(w http.ResponseWriter, r *http.Request, id int64) bool {
	_, err := h.store.GetSubject(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeSubjectNotFound(w, r, http.StatusBadRequest, id)
		return false
	}
	if err != nil {
		writeInternalError(w, r, err)
		return false
	}
	return true
}

// handleImportQuestions loads a JSON array of questions from a multipart
// upload. A file whose content hash matches the last import of the same
// name is skipped.
func (h *Handler) handleImportQuestions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "UploadMissing", nil, "file too large or not multipart")
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "UploadMissing", nil, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(r.Context(), header.Filename)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if storedHash == hash {
		writeError(w, r, http.StatusConflict, "UploadDuplicate", nil, "file already imported")
		return
	}

	var req importRequest
	if err := json.Unmarshal(data, &req.Questions); err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidQuestionFile", map[string]any{"Reason": err.Error()}, "invalid JSON: "+err.Error())
		return
	}
	if !h.validStruct(w, r, &req) {
		return
	}

	n, err := h.store.ImportQuestions(r.Context(), req.Questions)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if err := h.store.SetImportedFileHash(r.Context(), header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("uploaded questions via admin", "filename", header.Filename, "count", n)
	writeJSON(w, http.StatusCreated, importResponse{
		Imported: n,
		Message:  appI18n.Tp(r.Context(), "QuestionsImported", n),
	})
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	var f model.PracticeFilter
	q := r.URL.Query()
	if v := q.Get("subject_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "InvalidID", map[string]any{"Param": "subject_id"}, "invalid subject_id")
			return
		}
		f.SubjectID = &id
	}
	if v := q.Get("type"); v != "" {
		qt := model.QuestionType(v)
		if !qt.Valid() {
			writeError(w, r, http.StatusBadRequest, "ValidationFailed", map[string]any{"Field": "type", "Tag": "oneof"}, "invalid type")
			return
		}
		f.Type = &qt
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "ValidationFailed", map[string]any{"Field": "year", "Tag": "number"}, "invalid year")
			return
		}
		f.Year = &year
	}

	questions, err := h.store.ListQuestionsFiltered(r.Context(), f)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	q, err := h.store.GetQuestion(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, r, http.StatusNotFound, "QuestionNotFound", map[string]any{"QuestionID": id}, "question not found")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "questionID")
	if !ok {
		return
	}
	err := h.store.DeleteQuestion(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, r, http.StatusNotFound, "QuestionNotFound", map[string]any{"QuestionID": id}, "question not found")
		return
	}
	if errors.Is(err, store.ErrInUse) {
		writeError(w, r, http.StatusConflict, "QuestionInUse", map[string]any{"QuestionID": id}, "question has graded answers")
		return
	}
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
