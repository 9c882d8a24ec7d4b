package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VRMX2/USTHB-APP/internal/auth"
	"github.com/VRMX2/USTHB-APP/internal/core"
)

// ContextKeyPrincipal is the context key the verified principal is stored
// under for downstream handlers.
const ContextKeyPrincipal = "principal"

// AuthMiddleware creates a middleware that verifies bearer tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		principal, err := authService.Verify(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrAccountSuspended) {
				logger.Debug().Msg("suspended account rejected")
				c.JSON(http.StatusForbidden, ErrorResponse{Error: "account suspended"})
				c.Abort()
				return
			}
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

// principalFrom pulls the verified principal set by AuthMiddleware.
func principalFrom(c *gin.Context) (*core.Principal, bool) {
	value, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*core.Principal)
	return principal, ok
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request
		c.Next()

		// Log after request
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
