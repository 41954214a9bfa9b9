package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pagemorph/pagemorph/internal/auth"
	"github.com/pagemorph/pagemorph/internal/models"
)

const contextKeySubject = "subject"

// RevocationChecker answers whether a session has been revoked. The JWT
// proves identity; the server-side session store stays authoritative for
// revocation.
type RevocationChecker interface {
	IsSessionRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// AuthMiddleware validates the bearer access token, checks session
// revocation, and attaches the Subject to the request context. Handlers
// never see an unauthenticated request.
func AuthMiddleware(secret string, revocations RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseAccessToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		revoked, err := revocations.IsSessionRevoked(c.Request.Context(), claims.SessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "authentication unavailable",
			})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "session revoked",
			})
			return
		}

		c.Set(contextKeySubject, claims.Subject())
		c.Next()
	}
}

// GetSubject extracts the authenticated Subject. The zero Subject (all
// nil UUIDs) is returned when auth middleware did not run; repository
// scoping then matches nothing.
func GetSubject(c *gin.Context) models.Subject {
	val, exists := c.Get(contextKeySubject)
	if !exists {
		return models.Subject{}
	}
	subject, ok := val.(models.Subject)
	if !ok {
		return models.Subject{}
	}
	return subject
}
