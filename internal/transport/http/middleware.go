package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/personly/channels-server/internal/auth"
	"github.com/personly/channels-server/internal/core"
)

const (
	// ContextKeyClaims is the context key for the verified credential claims.
	ContextKeyClaims = "claims"
	// ContextKeyUserID is the context key for storing the user id.
	ContextKeyUserID = "user_id"
)

// bearerToken extracts a credential from the Authorization header or, for
// websocket upgrades where headers are awkward for browser clients, from the
// token query parameter.
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return c.Query("token")
}

// AuthMiddleware validates bearer credentials and stores the claims.
func AuthMiddleware(verifier *auth.Verifier, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing credential"})
			c.Abort()
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			logger.Debug().Err(err).Msg("credential rejected")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credential"})
			c.Abort()
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

// RequireRole rejects requests whose credential lacks the given global role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		if claims == nil || !claims.HasRole(role) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

func claimsFromContext(c *gin.Context) *auth.Claims {
	v, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := v.(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

func identityFromClaims(claims *auth.Claims) core.Identity {
	return core.Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Avatar:   claims.Avatar,
		Persona:  claims.Persona,
		Roles:    claims.Roles,
	}
}
