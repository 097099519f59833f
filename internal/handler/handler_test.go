package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/schoolexam/internal/exam"
	appI18n "github.com/pavelanni/schoolexam/internal/i18n"
	"github.com/pavelanni/schoolexam/internal/model"
	"github.com/pavelanni/schoolexam/internal/store"
)

const testPassword = "secret123"

type testServer struct {
	t      *testing.T
	st     *store.Store
	router chi.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	require.NoError(t, appI18n.Init("en"))

	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := model.ServerConfig{Lang: "en"}
	svc := exam.New(st, cfg, rand.New(rand.NewPCG(7, 11)))
	r := chi.NewRouter()
	New(st, svc, cfg).Routes(r)

	return &testServer{t: t, st: st, router: r}
}

func (ts *testServer) addUser(username string, role model.UserRole, classID *int64) int64 {
	ts.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(ts.t, err)
	id, err := ts.st.CreateUser(context.Background(), model.User{
		Username:     username,
		DisplayName:  username,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		ClassID:      classID,
	})
	require.NoError(ts.t, err)
	return id
}

func (ts *testServer) do(method, path, token string, body any, header map[string]string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(username string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/v1/auth/login", "", loginRequest{Username: username, Password: testPassword}, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(ts.t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) errorResponse {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, code, resp.Code)
	assert.NotEmpty(t, resp.Error)
	return resp
}

func TestLoginAndMe(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser("ada", model.UserRoleTeacher, nil)

	rec := ts.do(http.MethodPost, "/api/v1/auth/login", "", loginRequest{Username: "ada", Password: "wrong-password"}, nil)
	requireError(t, rec, http.StatusUnauthorized, "InvalidCredentials")

	rec = ts.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ada"}, nil)
	resp := requireError(t, rec, http.StatusBadRequest, "ValidationFailed")
	assert.Equal(t, "Field password failed the required check.", resp.Error)

	token := ts.login("ada")
	rec = ts.do(http.MethodGet, "/api/v1/auth/me", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[model.User](t, rec)
	assert.Equal(t, "ada", me.Username)
	assert.Equal(t, model.UserRoleTeacher, me.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = ts.do(http.MethodPost, "/api/v1/auth/logout", token, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/auth/me", token, nil, nil)
	requireError(t, rec, http.StatusUnauthorized, "Unauthorized")
}

func TestRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/bundles", "", nil, nil)
	requireError(t, rec, http.StatusUnauthorized, "Unauthorized")
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = ts.do(http.MethodGet, "/api/v1/bundles", "not-a-token", nil, nil)
	requireError(t, rec, http.StatusUnauthorized, "Unauthorized")
}

func TestInactiveUserRejected(t *testing.T) {
	ts := newTestServer(t)
	id := ts.addUser("bob", model.UserRoleStudent, nil)
	token := ts.login("bob")

	require.NoError(t, ts.st.ToggleUserActive(context.Background(), id))
	rec := ts.do(http.MethodGet, "/api/v1/auth/me", token, nil, nil)
	requireError(t, rec, http.StatusUnauthorized, "Unauthorized")
}

func TestRoleGuards(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	ts.addUser("student", model.UserRoleStudent, nil)
	teacher := ts.login("teacher")
	student := ts.login("student")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
	}{
		{"student creates subject", http.MethodPost, "/api/v1/subjects", student, nameRequest{Name: "Maths"}},
		{"student lists questions", http.MethodGet, "/api/v1/questions", student, nil},
		{"student creates bundle", http.MethodPost, "/api/v1/bundles", student, bundleRequest{Name: "x"}},
		{"teacher lists users", http.MethodGet, "/api/v1/admin/users", teacher, nil},
		{"teacher starts exam", http.MethodPost, "/api/v1/student/exams/1/start", teacher, nil},
		{"teacher starts practice", http.MethodPost, "/api/v1/student/practice/start", teacher, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, tt.token, tt.body, nil)
			requireError(t, rec, http.StatusForbidden, "ForbiddenRole")
		})
	}
}

func TestLocalizedErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser("student", model.UserRoleStudent, nil)
	token := ts.login("student")

	rec := ts.do(http.MethodPost, "/api/v1/subjects", token, nameRequest{Name: "Maths"},
		map[string]string{"Accept-Language": "ru-RU,ru;q=0.9,en;q=0.5"})
	resp := requireError(t, rec, http.StatusForbidden, "ForbiddenRole")
	assert.Equal(t, "ru", rec.Header().Get("Content-Language"))
	assert.Equal(t, "У вас нет прав на это действие.", resp.Error)

	rec = ts.do(http.MethodGet, "/api/v1/student/exams", token, nil, nil)
	resp = requireError(t, rec, http.StatusNotFound, "NoClass")
	assert.Equal(t, "en", rec.Header().Get("Content-Language"))
	assert.Equal(t, "You are not assigned to a class.", resp.Error)
}

func TestInvalidRequests(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	token := ts.login("teacher")

	rec := ts.do(http.MethodGet, "/api/v1/bundles/abc", token, nil, nil)
	resp := requireError(t, rec, http.StatusBadRequest, "InvalidID")
	assert.Equal(t, "The bundleID in the path is not a valid ID.", resp.Error)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	raw := httptest.NewRecorder()
	ts.router.ServeHTTP(raw, req)
	requireError(t, raw, http.StatusBadRequest, "InvalidRequest")

	rec = ts.do(http.MethodPost, "/api/v1/questions", token, map[string]any{"subject_id": 1, "answer": "A"}, nil)
	resp = requireError(t, rec, http.StatusBadRequest, "ValidationFailed")
	assert.Equal(t, "Field question_text failed the required check.", resp.Error)

	rec = ts.do(http.MethodPost, "/api/v1/questions", token, questionRequest{SubjectID: 99, Text: "Q", Answer: "A"}, nil)
	requireError(t, rec, http.StatusBadRequest, "SubjectNotFound")

	rec = ts.do(http.MethodGet, "/api/v1/questions/99", token, nil, nil)
	requireError(t, rec, http.StatusNotFound, "QuestionNotFound")

	rec = ts.do(http.MethodGet, "/api/v1/questions?type=gce", token, nil, nil)
	requireError(t, rec, http.StatusBadRequest, "ValidationFailed")

	rec = ts.do(http.MethodGet, "/api/v1/bundles/99", token, nil, nil)
	requireError(t, rec, http.StatusNotFound, "BundleNotFound")
}

func TestAdminUsers(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser("admin", model.UserRoleAdmin, nil)
	token := ts.login("admin")

	rec := ts.do(http.MethodPost, "/api/v1/classes", token, nameRequest{Name: "SS1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	class := decode[model.StudentClass](t, rec)

	rec = ts.do(http.MethodPost, "/api/v1/classes", token, nameRequest{Name: "SS1"}, nil)
	requireError(t, rec, http.StatusConflict, "NameTaken")

	newUser := createUserRequest{Username: "chidi", Password: "pass1234", Role: model.UserRoleStudent, ClassID: &class.ID}
	rec = ts.do(http.MethodPost, "/api/v1/admin/users", token, newUser, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.User](t, rec)
	assert.Equal(t, "chidi", created.DisplayName)
	require.NotNil(t, created.ClassID)
	assert.Equal(t, class.ID, *created.ClassID)

	rec = ts.do(http.MethodPost, "/api/v1/admin/users", token, newUser, nil)
	requireError(t, rec, http.StatusConflict, "NameTaken")

	missing := int64(42)
	rec = ts.do(http.MethodPost, "/api/v1/admin/users", token,
		createUserRequest{Username: "emeka", Password: "pass1234", Role: model.UserRoleStudent, ClassID: &missing}, nil)
	requireError(t, rec, http.StatusBadRequest, "ClassNotFound")

	rec = ts.do(http.MethodPost, "/api/v1/admin/users", token,
		createUserRequest{Username: "emeka", Password: "pass1234", Role: "janitor"}, nil)
	requireError(t, rec, http.StatusBadRequest, "ValidationFailed")

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/toggle", created.ID), token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[model.User](t, rec).Active)

	rec = ts.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/users/%d/class", created.ID), token, setClassRequest{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[model.User](t, rec).ClassID)

	rec = ts.do(http.MethodPost, "/api/v1/admin/users/999/toggle", token, nil, nil)
	requireError(t, rec, http.StatusNotFound, "UserNotFound")

	rec = ts.do(http.MethodGet, "/api/v1/admin/users", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.User](t, rec), 2)
}

// setupExam creates a subject with three questions and a bundle drawing two
// of them for the class.
func setupExam(t *testing.T, ts *testServer, teacher string, classID int64) bundleResponse {
	t.Helper()
	rec := ts.do(http.MethodPost, "/api/v1/subjects", teacher, nameRequest{Name: "Biology"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	subject := decode[model.Subject](t, rec)

	for i := range 3 {
		rec = ts.do(http.MethodPost, "/api/v1/questions", teacher, questionRequest{
			SubjectID: subject.ID,
			Type:      model.QuestionTypeWAEC,
			Text:      fmt.Sprintf("Question %d", i+1),
			Options:   map[string]string{"A": "Mitochondria", "B": "Nucleus"},
			Answer:    "A",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodPost, "/api/v1/bundles", teacher, bundleRequest{
		Name:                "Biology mock",
		TimeLimit:           45,
		SubjectCombinations: model.Recipe{subject.ID: 2},
		ClassIDs:            []int64{classID},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[bundleResponse](t, rec)
	require.Len(t, b.QuestionIDs, 2)
	assert.Equal(t, 45, b.TimeLimitMinutes)
	assert.True(t, b.Active)
	return b
}

func TestExamFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	classID, err := ts.st.CreateClass(ctx, "SS3")
	require.NoError(t, err)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	ts.addUser("student", model.UserRoleStudent, &classID)
	ts.addUser("other", model.UserRoleStudent, &classID)
	teacher := ts.login("teacher")
	student := ts.login("student")
	other := ts.login("other")

	b := setupExam(t, ts, teacher, classID)

	rec := ts.do(http.MethodGet, "/api/v1/student/exams", student, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	available := decode[[]bundleResponse](t, rec)
	require.Len(t, available, 1)
	assert.Equal(t, b.ID, available[0].ID)

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/student/exams/%d/start", b.ID), student, nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `"answer"`)
	started := decode[exam.StartedAttempt](t, rec)
	require.Len(t, started.Questions, 2)
	assert.Equal(t, model.StatusInProgress, started.Attempt.Status)
	assert.NotNil(t, started.Deadline)

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/student/exams/%d/start", b.ID), student, nil, nil)
	requireError(t, rec, http.StatusConflict, "ActiveAttempt")

	attemptPath := fmt.Sprintf("/api/v1/student/attempts/%d", started.Attempt.ID)

	rec = ts.do(http.MethodGet, attemptPath+"/result", student, nil, nil)
	requireError(t, rec, http.StatusBadRequest, "StillInProgress")

	rec = ts.do(http.MethodPost, attemptPath+"/submit", other, submitRequest{}, nil)
	requireError(t, rec, http.StatusForbidden, "NotOwner")

	answers := submitRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: started.Questions[0].ID, Selected: "A"},
		{QuestionID: started.Questions[1].ID, Selected: "B"},
	}}
	rec = ts.do(http.MethodPost, attemptPath+"/submit", student, answers, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	graded := decode[model.Attempt](t, rec)
	assert.Equal(t, model.StatusGraded, graded.Status)
	require.NotNil(t, graded.Score)
	assert.Equal(t, 1.0, *graded.Score)

	rec = ts.do(http.MethodPost, attemptPath+"/submit", student, answers, nil)
	requireError(t, rec, http.StatusConflict, "NotInProgress")

	rec = ts.do(http.MethodGet, attemptPath+"/result", student, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[exam.AttemptResult](t, rec)
	assert.Len(t, result.Answers, 2)

	rec = ts.do(http.MethodGet, "/api/v1/student/attempts", student, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Attempt](t, rec), 1)

	rec = ts.do(http.MethodDelete, fmt.Sprintf("/api/v1/bundles/%d", b.ID), teacher, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSubmitRejectsForeignQuestion(t *testing.T) {
	ts := newTestServer(t)
	classID, err := ts.st.CreateClass(context.Background(), "SS3")
	require.NoError(t, err)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	ts.addUser("student", model.UserRoleStudent, &classID)
	teacher := ts.login("teacher")
	student := ts.login("student")

	b := setupExam(t, ts, teacher, classID)
	rec := ts.do(http.MethodPost, fmt.Sprintf("/api/v1/student/exams/%d/start", b.ID), student, nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode[exam.StartedAttempt](t, rec)

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/student/attempts/%d/submit", started.Attempt.ID), student,
		submitRequest{Answers: []model.SubmittedAnswer{{QuestionID: 9999, Selected: "A"}}}, nil)
	requireError(t, rec, http.StatusBadRequest, "QuestionNotInBundle")

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/student/attempts/%d/submit", started.Attempt.ID), student,
		submitRequest{Answers: []model.SubmittedAnswer{{QuestionID: 0, Selected: "A"}}}, nil)
	resp := requireError(t, rec, http.StatusBadRequest, "ValidationFailed")
	assert.Equal(t, "Field answers[0].question_id failed the required check.", resp.Error)
}

func TestPracticeFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	ts.addUser("student", model.UserRoleStudent, nil)
	teacher := ts.login("teacher")
	student := ts.login("student")

	rec := ts.do(http.MethodPost, "/api/v1/student/practice/start", student, nil, nil)
	requireError(t, rec, http.StatusNotFound, "NoPracticeQuestions")

	rec = ts.do(http.MethodPost, "/api/v1/subjects", teacher, nameRequest{Name: "Chemistry"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	subject := decode[model.Subject](t, rec)
	for _, qt := range []model.QuestionType{model.QuestionTypeJAMB, model.QuestionTypeNECO} {
		rec = ts.do(http.MethodPost, "/api/v1/questions", teacher, questionRequest{
			SubjectID: subject.ID, Type: qt, Text: "Symbol for gold?", Answer: "Au",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	qt := model.QuestionTypeJAMB
	rec = ts.do(http.MethodPost, "/api/v1/student/practice/start", student, practiceRequest{Type: &qt}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `"answer"`)
	started := decode[exam.StartedPractice](t, rec)
	require.Len(t, started.Questions, 1)
	assert.Equal(t, model.QuestionTypeJAMB, started.Questions[0].Type)

	sessionPath := fmt.Sprintf("/api/v1/student/practice/%d", started.Session.ID)
	rec = ts.do(http.MethodPost, sessionPath+"/submit", student, submitRequest{Answers: []model.SubmittedAnswer{
		{QuestionID: started.Questions[0].ID, Selected: "Au"},
	}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[model.PracticeSession](t, rec)
	assert.Equal(t, model.StatusCompleted, done.Status)

	rec = ts.do(http.MethodGet, sessionPath+"/result", student, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[exam.PracticeResult](t, rec)
	require.Len(t, result.Answers, 1)
	assert.True(t, result.Answers[0].Correct)
	assert.Equal(t, "Au", result.Answers[0].CorrectAnswer)

	rec = ts.do(http.MethodGet, "/api/v1/student/practice", student, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.PracticeSession](t, rec), 1)
}

func uploadQuestions(t *testing.T, ts *testServer, token, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("questions_file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/questions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestImportQuestions(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	token := ts.login("teacher")

	data := []byte(`[
		{"subject": "Physics", "type": "waec", "year": 2019, "question_text": "Unit of force?", "options": {"A": "Newton", "B": "Joule"}, "answer": "A"},
		{"subject": "Physics", "question_text": "Unit of energy?", "options": {"A": "Newton", "B": "Joule"}, "answer": "B"}
	]`)

	rec := uploadQuestions(t, ts, token, "physics.json", data)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[importResponse](t, rec)
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, "Imported 2 questions.", resp.Message)

	rec = uploadQuestions(t, ts, token, "physics.json", data)
	requireError(t, rec, http.StatusConflict, "UploadDuplicate")

	rec = uploadQuestions(t, ts, token, "bad.json", []byte(`[{"subject": "Physics", "answer": "A"}]`))
	requireError(t, rec, http.StatusBadRequest, "ValidationFailed")

	rec = uploadQuestions(t, ts, token, "broken.json", []byte(`{`))
	requireError(t, rec, http.StatusBadRequest, "InvalidQuestionFile")

	rec = ts.do(http.MethodGet, "/api/v1/questions?type=school", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	questions := decode[[]model.Question](t, rec)
	require.Len(t, questions, 1)
	assert.Equal(t, "Unit of energy?", questions[0].Text)

	rec = ts.do(http.MethodGet, "/api/v1/subjects", token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Subject](t, rec), 1)
}

func TestSubmitScalarSelectedAnswer(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	classID, err := ts.st.CreateClass(ctx, "SS3")
	require.NoError(t, err)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	ts.addUser("student", model.UserRoleStudent, &classID)
	teacher := ts.login("teacher")
	student := ts.login("student")

	rec := ts.do(http.MethodPost, "/api/v1/subjects", teacher, nameRequest{Name: "Mathematics"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	subject := decode[model.Subject](t, rec)
	for _, text := range []string{"1+0?", "2-1?"} {
		rec = ts.do(http.MethodPost, "/api/v1/questions", teacher, questionRequest{
			SubjectID: subject.ID,
			Text:      text,
			Options:   map[string]string{"1": "one", "2": "two"},
			Answer:    "1",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = ts.do(http.MethodPost, "/api/v1/bundles", teacher, bundleRequest{
		Name:                "Numbers",
		SubjectCombinations: model.Recipe{subject.ID: 2},
		ClassIDs:            []int64{classID},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[bundleResponse](t, rec)

	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/student/exams/%d/start", b.ID), student, nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[exam.StartedAttempt](t, rec)
	submitPath := fmt.Sprintf("/api/v1/student/attempts/%d/submit", started.Attempt.ID)

	rec = ts.do(http.MethodPost, submitPath, student, json.RawMessage(fmt.Sprintf(
		`{"answers":[{"question_id":%d,"selected_answer":{"value":1}}]}`, started.Questions[0].ID)), nil)
	requireError(t, rec, http.StatusBadRequest, "InvalidRequest")

	rec = ts.do(http.MethodPost, submitPath, student, json.RawMessage(fmt.Sprintf(
		`{"answers":[{"question_id":%d,"selected_answer":1},{"question_id":%d,"selected_answer":true}]}`,
		started.Questions[0].ID, started.Questions[1].ID)), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	graded := decode[model.Attempt](t, rec)
	require.NotNil(t, graded.Score)
	assert.Equal(t, 1.0, *graded.Score)

	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/student/attempts/%d/result", started.Attempt.ID), student, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[exam.AttemptResult](t, rec)
	selected := map[string]bool{}
	for _, a := range result.Answers {
		selected[a.Selected] = a.Correct
	}
	assert.Equal(t, map[string]bool{"1": true, "true": false}, selected)
}

func TestSubjectAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	token := ts.login("teacher")

	rec := ts.do(http.MethodPost, "/api/v1/subjects", token, nameRequest{Name: "Biology"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bio := decode[model.Subject](t, rec)
	rec = ts.do(http.MethodPost, "/api/v1/subjects", token, nameRequest{Name: "Chemistry"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	subjectPath := fmt.Sprintf("/api/v1/subjects/%d", bio.ID)
	rec = ts.do(http.MethodGet, subjectPath, token, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Biology", decode[model.Subject](t, rec).Name)

	rec = ts.do(http.MethodPut, subjectPath, token, nameRequest{Name: "Chemistry"}, nil)
	requireError(t, rec, http.StatusConflict, "NameTaken")

	rec = ts.do(http.MethodPut, subjectPath, token, nameRequest{Name: "Life Science"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Life Science", decode[model.Subject](t, rec).Name)

	rec = ts.do(http.MethodPut, "/api/v1/subjects/999", token, nameRequest{Name: "Physics"}, nil)
	requireError(t, rec, http.StatusNotFound, "SubjectNotFound")

	rec = ts.do(http.MethodDelete, subjectPath, token, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, subjectPath, token, nil, nil)
	requireError(t, rec, http.StatusNotFound, "SubjectNotFound")

	rec = ts.do(http.MethodDelete, subjectPath, token, nil, nil)
	requireError(t, rec, http.StatusNotFound, "SubjectNotFound")
}

func TestUpdateAndDeleteQuestion(t *testing.T) {
	ts := newTestServer(t)
	classID, err := ts.st.CreateClass(context.Background(), "SS3")
	require.NoError(t, err)
	ts.addUser("teacher", model.UserRoleTeacher, nil)
	ts.addUser("student", model.UserRoleStudent, &classID)
	teacher := ts.login("teacher")
	student := ts.login("student")

	b := setupExam(t, ts, teacher, classID)
	rec := ts.do(http.MethodPost, fmt.Sprintf("/api/v1/student/exams/%d/start", b.ID), student, nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decode[exam.StartedAttempt](t, rec)
	answered := started.Questions[0]
	rec = ts.do(http.MethodPost, fmt.Sprintf("/api/v1/student/attempts/%d/submit", started.Attempt.ID), student,
		submitRequest{Answers: []model.SubmittedAnswer{{QuestionID: answered.ID, Selected: "A"}}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	questionPath := fmt.Sprintf("/api/v1/questions/%d", answered.ID)
	update := questionRequest{
		SubjectID: answered.SubjectID,
		Type:      model.QuestionTypeNECO,
		Text:      "Powerhouse of the cell?",
		Options:   map[string]string{"A": "Mitochondria", "B": "Nucleus"},
		Answer:    "B",
	}
	rec = ts.do(http.MethodPut, questionPath, teacher, update, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[model.Question](t, rec)
	assert.Equal(t, "B", q.Answer)
	assert.Equal(t, model.QuestionTypeNECO, q.Type)
	assert.Equal(t, "Powerhouse of the cell?", q.Text)

	rec = ts.do(http.MethodPut, "/api/v1/questions/9999", teacher, update, nil)
	requireError(t, rec, http.StatusNotFound, "QuestionNotFound")

	badSubject := update
	badSubject.SubjectID = 9999
	rec = ts.do(http.MethodPut, questionPath, teacher, badSubject, nil)
	requireError(t, rec, http.StatusBadRequest, "SubjectNotFound")

	rec = ts.do(http.MethodDelete, questionPath, teacher, nil, nil)
	requireError(t, rec, http.StatusConflict, "QuestionInUse")

	rec = ts.do(http.MethodDelete, fmt.Sprintf("/api/v1/subjects/%d", answered.SubjectID), teacher, nil, nil)
	requireError(t, rec, http.StatusConflict, "SubjectInUse")

	rec = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/student/attempts/%d/result", started.Attempt.ID), student, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[exam.AttemptResult](t, rec)
	require.Len(t, result.Answers, 1)
	assert.Equal(t, "B", result.Answers[0].CorrectAnswer)
}
