package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltadebate/config"
	"deltadebate/internal/matching"
	"deltadebate/internal/memstore"
	"deltadebate/internal/pairing"
	"deltadebate/internal/phase"
	"deltadebate/internal/scoring"
	"deltadebate/middlewares"
	"deltadebate/services"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type server struct {
	router *gin.Engine
	clock  *clock
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()
	clk := &clock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}

	phases, err := phase.NewScheduler(memstore.NewPhaseStore(), phase.DefaultConfig(), logger, phase.WithClock(clk.Now))
	require.NoError(t, err)
	debates := memstore.NewDebateStore()
	svc := services.NewDebateService(
		debates,
		phases,
		matching.NewMatcher(memstore.NewMatchStore(), debates, nil, logger),
		scoring.NewScorer(memstore.NewReviewStore(), debates, logger),
		pairing.NewSolver(pairing.SimplexEngine{}, logger),
		logger,
	)
	enforcer, err := middlewares.NewEnforcer(config.Default().RBAC.Policies)
	require.NoError(t, err)

	router := gin.New()
	Setup(router, Deps{Service: svc, Enforcer: enforcer, Logger: logger})
	return &server{router: router, clock: clk}
}

type call struct {
	method string
	path   string
	body   any
	user   string
	role   string
}

func (s *server) do(t *testing.T, c call) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set(middlewares.UserHeader, c.user)
	}
	if c.role != "" {
		req.Header.Set(middlewares.RoleHeader, c.role)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (s *server) list(t *testing.T, path, user string) []map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set(middlewares.UserHeader, user)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *server) newPrompt(t *testing.T, prompt string) string {
	t.Helper()
	code, body := s.do(t, call{method: http.MethodPost, path: "/debate/newPrompt", user: "alice",
		body: map[string]any{"prompt": prompt, "category": "policy"}})
	require.Equal(t, http.StatusCreated, code, body)
	return body["debate"].(map[string]any)["id"].(string)
}

func TestDebateFlow(t *testing.T) {
	s := newServer(t)
	id := s.newPrompt(t, "Ban cars downtown?")

	active := s.list(t, "/activeDebates", "")
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0]["key"])
	assert.Equal(t, "Start", active[0]["phase"])

	for user, likert := range map[string]float64{"alice": 10, "bob": 90} {
		code, body := s.do(t, call{method: http.MethodPost, path: "/debate/submitOpinion", user: user,
			body: map[string]any{"debateID": id, "content": user + " says", "likertScale": likert}})
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, "Opinion created!", body["msg"])
	}

	matched := s.list(t, "/debate/matchOpinions?debateID="+id, "alice")
	require.Len(t, matched, 1)
	assert.Equal(t, "bob says", matched[0]["content"])

	code, body := s.do(t, call{method: http.MethodGet, path: "/debate/getMyOpinion/" + id, user: "carol"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["found"])

	code, _ = s.do(t, call{method: http.MethodDelete, path: "/debate/deleteMyOpinion/" + id, user: "carol"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	id := s.newPrompt(t, "Four day week?")

	code, _ := s.do(t, call{method: http.MethodPost, path: "/debate/newPrompt", user: "bob",
		body: map[string]any{"prompt": "Four day week?"}})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, call{method: http.MethodPost, path: "/debate/newPrompt",
		body: map[string]any{"prompt": "anonymous"}})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, call{method: http.MethodPost, path: "/debate/submitOpinion", user: "alice",
		body: map[string]any{"debateID": id, "content": "x", "likertScale": 150}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, call{method: http.MethodGet, path: "/activeDebates/missing"})
	assert.Equal(t, http.StatusNotFound, code)

	_, body := s.do(t, call{method: http.MethodPost, path: "/debate/submitOpinion", user: "alice",
		body: map[string]any{"debateID": id, "content": "mine", "likertScale": 20}})
	own := body["opinion"].(map[string]any)["id"].(string)

	code, _ = s.do(t, call{method: http.MethodPost, path: "/opinion/submitReview", user: "alice",
		body: map[string]any{"debateID": id, "opinionID": own, "score": 80}})
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, call{method: http.MethodPost, path: "/opinion/submitReview", user: "bob",
		body: map[string]any{"debateID": id, "opinionID": own, "score": 80}})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Review submitted!", body["msg"])
}

func TestAdminRoutesRequireRole(t *testing.T) {
	s := newServer(t)

	code, body := s.do(t, call{method: http.MethodGet, path: "/admin/phase/config"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Admin role not found", body["error"])

	code, body = s.do(t, call{method: http.MethodGet, path: "/admin/phase/config", role: "member"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Insufficient permissions", body["error"])

	code, body = s.do(t, call{method: http.MethodGet, path: "/admin/phase/config", role: "admin"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(4), body["maxPhase"])
	assert.Equal(t, float64(24), body["deadlineExtensionHours"])
}

func TestAdminSetters(t *testing.T) {
	s := newServer(t)
	admin := func(method, path string, value any) (int, map[string]any) {
		return s.do(t, call{method: method, path: path, role: "admin", body: map[string]any{"value": value}})
	}

	code, _ := admin(http.MethodPatch, "/admin/phase/numPrompts", 2.5)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = admin(http.MethodPost, "/admin/phase/maxPhase", 0)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = admin(http.MethodPatch, "/admin/phase/extension", -1)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = admin(http.MethodPatch, "/admin/phase/extension", 1e7)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := admin(http.MethodPatch, "/admin/phase/numPrompts", 3)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["numPromptsPerDay"])

	code, body = admin(http.MethodPatch, "/admin/phase/extension", 1.5)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.5, body["deadlineExtensionHours"])

	code, body = admin(http.MethodPost, "/admin/phase/maxPhase", 5)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5), body["maxPhase"])
}

func TestAdminDeadlineAndDelete(t *testing.T) {
	s := newServer(t)
	id := s.newPrompt(t, "Free transit?")

	past := s.clock.Now().Add(-time.Hour)
	code, _ := s.do(t, call{method: http.MethodPatch, path: "/admin/debate/changeDeadline", role: "admin",
		body: map[string]any{"debateID": id, "deadline": past}})
	assert.Equal(t, http.StatusForbidden, code)

	later := s.clock.Now().Add(72 * time.Hour)
	code, _ = s.do(t, call{method: http.MethodPatch, path: "/admin/debate/changeDeadline", role: "admin",
		body: map[string]any{"debateID": id, "deadline": later}})
	assert.Equal(t, http.StatusOK, code)

	code, body := s.do(t, call{method: http.MethodPost, path: "/admin/debates/" + id + "/finalize", role: "admin"})
	assert.Equal(t, http.StatusForbidden, code, body)

	code, _ = s.do(t, call{method: http.MethodDelete, path: "/admin/debates/" + id, role: "admin"})
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, s.list(t, "/activeDebates", ""))
}

func TestAdminAssignment(t *testing.T) {
	s := newServer(t)
	id := s.newPrompt(t, "Nuclear power?")
	for user, likert := range map[string]float64{"alice": 0, "bob": 50, "carol": 100} {
		code, _ := s.do(t, call{method: http.MethodPost, path: "/debate/submitOpinion", user: user,
			body: map[string]any{"debateID": id, "content": user, "likertScale": likert}})
		require.Equal(t, http.StatusOK, code)
	}

	code, body := s.do(t, call{method: http.MethodGet, path: "/admin/debates/" + id + "/assignment?k=1", role: "admin"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["found"])
	assignment := body["assignment"].(map[string]any)
	assert.Len(t, assignment, 3)
	for _, ids := range assignment {
		assert.Len(t, ids, 1)
	}

	code, body = s.do(t, call{method: http.MethodGet, path: "/admin/debates/" + id + "/assignment?k=3", role: "admin"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["found"])
}
