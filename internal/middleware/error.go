package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/inbox-api/pkg/errors"
	"github.com/jwalitptl/inbox-api/pkg/httputil"
)

// ErrorHandler renders the last error a handler attached with c.Error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle errors if they exist
		if len(c.Errors) == 0 {
			return
		}

		logger := zerolog.Ctx(c.Request.Context())
		for _, e := range c.Errors {
			appErr, ok := errors.As(e.Err)
			if ok && appErr.Code != errors.ErrInternal {
				logger.Debug().Err(e.Err).Str("path", c.Request.URL.Path).Msg("Request rejected")
				continue
			}
			logger.Error().
				Err(e.Err).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
