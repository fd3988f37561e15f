package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/inbox-api/internal/service/session"
	"github.com/jwalitptl/inbox-api/pkg/errors"
	"github.com/jwalitptl/inbox-api/pkg/httputil"
	"github.com/jwalitptl/inbox-api/pkg/metrics"
)

// ContextUserID is the gin context key holding the resolved user id.
const ContextUserID = "user_id"

const bearerPrefix = "Bearer "

type AuthMiddleware struct {
	resolver session.Resolver
	metrics  *metrics.Metrics
}

func NewAuthMiddleware(resolver session.Resolver, m *metrics.Metrics) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		metrics:  m,
	}
}

// Authenticate resolves the bearer token and stores the user id in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
			m.metrics.Session("unauthenticated")
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		if token == "" {
			m.metrics.Session("unauthenticated")
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}

		userID, err := m.resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if stderrors.Is(err, session.ErrExpired) {
				m.metrics.Session("expired")
				httputil.RespondWithError(c, errors.SessionExpired(nil))
				return
			}
			m.metrics.Session("error")
			_ = c.Error(errors.Internal(err))
			c.Abort()
			return
		}

		m.metrics.Session("ok")
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID returns the id stored by Authenticate.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
