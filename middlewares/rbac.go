package middlewares

import (
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"deltadebate/config"
)

// RoleHeader carries the caller's role, set by the gateway in front of the
// service.
const RoleHeader = "X-User-Role"

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// NewEnforcer builds an in memory casbin enforcer from the configured
// policies. Paths use keyMatch2 patterns and actions are regular
// expressions over HTTP methods.
func NewEnforcer(policies []config.Policy) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create Casbin model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create Casbin enforcer: %w", err)
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p.Role, p.Path, p.Action); err != nil {
			return nil, fmt.Errorf("failed to add policy %s %s %s: %w", p.Role, p.Path, p.Action, err)
		}
	}
	return enforcer, nil
}

// RBACMiddleware checks the caller's role against the request path and method.
func RBACMiddleware(enforcer *casbin.Enforcer, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetHeader(RoleHeader)
		if role == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin role not found"})
			c.Abort()
			return
		}

		path, method := c.Request.URL.Path, c.Request.Method
		allowed, err := enforcer.Enforce(role, path, method)
		if err != nil {
			logger.Error().Err(err).Str("role", role).Str("path", path).Msg("casbin enforce error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Permission check failed"})
			c.Abort()
			return
		}
		if !allowed {
			logger.Warn().Str("role", role).Str("path", path).Str("method", method).Msg("permission denied")
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}
