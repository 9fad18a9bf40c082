package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	role   string
	body   map[string]any
}

func fakeServer(t *testing.T, status int, reply any) (*httptest.Server, func() []recorded) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.RequestURI(), role: r.Header.Get("X-User-Role")}
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), calls...)
	}
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	root := RootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPhaseShow(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, map[string]any{"maxPhase": 4, "deadlineExtensionHours": 24, "numPromptsPerDay": 2})

	out, err := run(t, srv.URL, "phase", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Max phase:          4")
	assert.Contains(t, out, "Deadline extension: 24h")

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "/admin/phase/config", got[0].path)
	assert.Equal(t, "admin", got[0].role)
}

func TestPhaseSetters(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, map[string]any{"maxPhase": 5, "deadlineExtensionHours": 1.5, "numPromptsPerDay": 3})

	_, err := run(t, srv.URL, "phase", "prompts", "2.5")
	assert.Error(t, err)
	assert.Empty(t, calls())

	_, err = run(t, srv.URL, "phase", "max-phase", "5")
	require.NoError(t, err)
	_, err = run(t, srv.URL, "phase", "extension", "1.5")
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, "/admin/phase/maxPhase", got[0].path)
	assert.Equal(t, float64(5), got[0].body["value"])
	assert.Equal(t, http.MethodPatch, got[1].method)
	assert.Equal(t, 1.5, got[1].body["value"])
}

func TestServerErrorSurfaces(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusForbidden, map[string]string{"error": "Insufficient permissions"})

	_, err := run(t, srv.URL, "--role", "guest", "debates", "delete", "d1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Insufficient permissions", apiErr.Message)
}

func TestDebatesActive(t *testing.T) {
	srv, _ := fakeServer(t, http.StatusOK, []map[string]any{
		{"key": "d1", "prompt": "Ban cars downtown?", "curPhase": 1, "phase": "Start"},
	})

	out, err := run(t, srv.URL, "debates", "active")
	require.NoError(t, err)
	assert.Contains(t, out, "d1")
	assert.Contains(t, out, "Ban cars downtown?")
	assert.Contains(t, out, "Start")
}

func TestDebatesAssign(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, map[string]any{"found": false})

	out, err := run(t, srv.URL, "debates", "assign", "d1", "--k", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "exactly 3 reviews")
	require.Len(t, calls(), 1)
	assert.Equal(t, "/admin/debates/d1/assignment?k=3", calls()[0].path)
}

func TestDeadlineRejectsBadTime(t *testing.T) {
	srv, calls := fakeServer(t, http.StatusOK, map[string]any{})

	_, err := run(t, srv.URL, "debates", "deadline", "d1", "tomorrow")
	assert.Error(t, err)
	assert.Empty(t, calls())
}
