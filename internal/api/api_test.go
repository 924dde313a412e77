package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumeforge/internal/account"
	"resumeforge/internal/auth"
	"resumeforge/internal/auth/authtest"
	"resumeforge/internal/builder"
	"resumeforge/internal/database/testdb"
	"resumeforge/internal/export"
	"resumeforge/internal/resume"
	"resumeforge/internal/suggestion"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, uint, string) error { return nil }

type pdfStub struct{}

func (pdfStub) FromHTML(context.Context, string) ([]byte, error) {
	return []byte("%PDF-1.7 stub"), nil
}

type testServer struct {
	router *gin.Engine
	auth   *auth.AuthService
	engine *suggestion.Engine
	redis  *redis.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testdb.New(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	authService := authtest.Service(t)
	guard := account.NewGuard(db)
	engine := suggestion.NewEngine(db, guard, nopDispatcher{}, nil, suggestion.NewRedisNotifier(rdb),
		suggestion.Config{MaxJobDescriptionBytes: 1000, RequeueAfter: time.Minute}, nil)

	router := NewRouter(nil)
	RegisterRoutes(router, Dependencies{
		Auth:        authService,
		Guard:       guard,
		Accounts:    account.NewService(db, guard, nil),
		Resumes:     builder.NewService(db, guard, nil),
		Suggestions: engine,
		Exports:     export.NewService(db, guard, pdfStub{}, nil, time.Minute, nil),
		Redis:       rdb,
	})
	return &testServer{router: router, auth: authService, engine: engine, redis: rdb}
}

func (s *testServer) token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := s.auth.IssueToken(auth.Identity{Subject: subject, Email: subject + "@x.com"}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) onboard(t *testing.T, subject string) (string, uint) {
	t.Helper()
	tok := s.token(t, subject)
	w := s.do(t, http.MethodPost, "/v1/onboarding", tok, resume.Content{
		PersonalInfo: resume.PersonalInfo{Name: "Jane Doe", Email: "jane@x.com"},
		Summary:      "Backend engineer",
		Skills:       []string{"Go", "go", "SQL"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	master := body["master_resume"].(map[string]any)
	return tok, uint(master["id"].(float64))
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/resumes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthenticated", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/v1/resumes", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// valid token but no account yet
	w = s.do(t, http.MethodGet, "/v1/me", s.token(t, "newcomer"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestOnboardingFlow(t *testing.T) {
	s := newTestServer(t)
	tok, masterID := s.onboard(t, "jane")

	w := s.do(t, http.MethodPost, "/v1/onboarding", tok, resume.Content{})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "UserAlreadyExists", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/v1/me", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, masterID, decode(t, w)["master_resume_id"])

	w = s.do(t, http.MethodGet, "/v1/resumes/master", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	master := decode(t, w)
	assert.Equal(t, resume.MasterTitle, master["title"])
	assert.Equal(t, true, master["is_master"])
	assert.Equal(t, []any{"Go", "SQL"}, master["skills"])
}

func TestResumeLifecycle(t *testing.T) {
	s := newTestServer(t)
	tok, masterID := s.onboard(t, "jane")

	w := s.do(t, http.MethodPost, "/v1/resumes", tok, map[string]string{"title": "Backend Role"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	forked := decode(t, w)
	forkID := uint(forked["id"].(float64))
	assert.Equal(t, "Backend engineer", forked["summary"])
	assert.Equal(t, false, forked["is_master"])

	w = s.do(t, http.MethodGet, "/v1/resumes", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["resumes"].([]any)
	require.Len(t, list, 1)
	assert.EqualValues(t, forkID, list[0].(map[string]any)["id"])

	w = s.do(t, http.MethodPatch, fmt.Sprintf("/v1/resumes/%d", forkID), tok, map[string]any{"summary": "Staff engineer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Staff engineer", decode(t, w)["summary"])

	w = s.do(t, http.MethodPatch, fmt.Sprintf("/v1/resumes/%d", forkID), tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/v1/resumes/%d", masterID), tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/v1/resumes/%d", forkID), tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/v1/resumes/%d", forkID), tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/resumes/abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOwnershipAcrossUsers(t *testing.T) {
	s := newTestServer(t)
	_, aliceMaster := s.onboard(t, "alice")
	bobTok, _ := s.onboard(t, "bob")

	paths := []struct{ method, path string }{
		{http.MethodGet, fmt.Sprintf("/v1/resumes/%d", aliceMaster)},
		{http.MethodPatch, fmt.Sprintf("/v1/resumes/%d", aliceMaster)},
		{http.MethodGet, fmt.Sprintf("/v1/resumes/%d/suggestion", aliceMaster)},
		{http.MethodPost, fmt.Sprintf("/v1/resumes/%d/suggestion", aliceMaster)},
		{http.MethodGet, fmt.Sprintf("/v1/export/resume/%d", aliceMaster)},
	}
	body := map[string]any{"summary": "pwned", "job_description": "x"}
	for _, p := range paths {
		w := s.do(t, p.method, p.path, bobTok, body)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", p.method, p.path)
		assert.Equal(t, "Unauthorized", decode(t, w)["code"])
	}
}

func TestSuggestionEndpoints(t *testing.T) {
	s := newTestServer(t)
	tok, masterID := s.onboard(t, "jane")
	base := fmt.Sprintf("/v1/resumes/%d/suggestion", masterID)

	w := s.do(t, http.MethodGet, base, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["suggestion"])

	w = s.do(t, http.MethodPost, base, tok, map[string]string{"job_description": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base, tok, map[string]string{"job_description": "Senior Go developer"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ticket := decode(t, w)
	assert.EqualValues(t, 1, ticket["generation"])

	w = s.do(t, http.MethodGet, base, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sug := decode(t, w)["suggestion"].(map[string]any)
	assert.Equal(t, true, sug["pending"])
	assert.Equal(t, "Senior Go developer", sug["job_description"])
	assert.Empty(t, sug["recommendations"])

	_, err := s.engine.Reconcile(context.Background(), suggestion.Result{
		SuggestionID: uint(ticket["suggestion_id"].(float64)),
		Generation:   1,
		Recommendations: []resume.Recommendation{
			{Type: resume.CategorySummary, Current: "a", Suggested: "b", Status: resume.StatusPending},
		},
	})
	require.NoError(t, err)

	w = s.do(t, http.MethodPatch, base+"/recommendations/0", tok, map[string]string{"status": "accepted", "type": "summary"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sug = decode(t, w)["suggestion"].(map[string]any)
	assert.Equal(t, false, sug["pending"])
	rec := sug["recommendations"].([]any)[0].(map[string]any)
	assert.Equal(t, "accepted", rec["status"])

	w = s.do(t, http.MethodPatch, base+"/recommendations/5", tok, map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportEndpoint(t *testing.T) {
	s := newTestServer(t)
	tok, masterID := s.onboard(t, "jane")

	w := s.do(t, http.MethodGet, fmt.Sprintf("/v1/export/resume/%d", masterID), tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="master-resume.pdf"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))

	w = s.do(t, http.MethodGet, fmt.Sprintf("/v1/export/resume/%d/link", masterID), tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/export/resume/999", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketForwardsNotifications(t *testing.T) {
	s := newTestServer(t)
	tok, masterID := s.onboard(t, "jane")

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": tok}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack struct {
		Type   string `json:"type"`
		UserID uint   `json:"user_id"`
	}
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "ready", ack.Type)
	userID := ack.UserID

	require.NoError(t, suggestion.NewRedisNotifier(s.redis).Notify(context.Background(), userID, suggestion.Notification{
		Type:     suggestion.NotificationType,
		Status:   suggestion.StatusReady,
		ResumeID: masterID,
	}))

	var msg suggestion.Notification
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, suggestion.StatusReady, msg.Status)
	assert.Equal(t, masterID, msg.ResumeID)
}

func TestWebSocketRejectsUnknownUser(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": s.token(t, "stranger")}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}
