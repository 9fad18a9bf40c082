package middlewares

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltadebate/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRBACMiddleware(t *testing.T) {
	enforcer, err := NewEnforcer([]config.Policy{
		{Role: "admin", Path: "/admin/*", Action: "(GET)|(POST)|(PATCH)|(DELETE)"},
		{Role: "moderator", Path: "/admin/debates/:id", Action: "DELETE"},
	})
	require.NoError(t, err)

	r := gin.New()
	admin := r.Group("/admin", RBACMiddleware(enforcer, zerolog.Nop()))
	admin.GET("/phase/config", func(c *gin.Context) { c.Status(http.StatusOK) })
	admin.DELETE("/debates/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		method string
		path   string
		role   string
		want   int
	}{
		{"missing role", http.MethodGet, "/admin/phase/config", "", http.StatusForbidden},
		{"admin read", http.MethodGet, "/admin/phase/config", "admin", http.StatusOK},
		{"admin delete", http.MethodDelete, "/admin/debates/d1", "admin", http.StatusOK},
		{"moderator delete", http.MethodDelete, "/admin/debates/d1", "moderator", http.StatusOK},
		{"moderator read", http.MethodGet, "/admin/phase/config", "moderator", http.StatusForbidden},
		{"unknown role", http.MethodGet, "/admin/phase/config", "guest", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.role != "" {
				headers[RoleHeader] = tc.role
			}
			w := serve(r, tc.method, tc.path, headers)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestIdentityMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", IdentityMiddleware(), func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })

	w := serve(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/me", map[string]string{UserHeader: "  alice "})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/ok", nil)
	id := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)
	assert.Contains(t, buf.String(), `"status":200`)

	w = serve(r, http.MethodGet, "/missing", map[string]string{RequestIDHeader: "req-7"})
	assert.Equal(t, "req-7", w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
