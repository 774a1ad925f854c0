package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mockai/mockai-backend/internal/response"
	"github.com/mockai/mockai-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
	// ContextKeyInterviewID is the Gin context key for the authorized interview ID.
	ContextKeyInterviewID = "interview_id"
)

// RequireInterviewToken validates a token of type tt for the interview named
// by the :id path parameter. The token is read from the Authorization header,
// falling back to ?token= for WebSocket and EventSource clients that cannot
// set headers.
func RequireInterviewToken(authService *service.AuthService, tt service.TokenType) gin.HandlerFunc {
	return func(c *gin.Context) {
		interviewID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		tokenStr := extractToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if errors.Is(err, jwt.ErrTokenExpired) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		if err := authService.Authorize(claims, tt, interviewID); err != nil {
			response.AbortFail(c, http.StatusForbidden, response.ErrTokenMismatch)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyInterviewID, interviewID)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetInterviewID returns the interview ID authorized by RequireInterviewToken.
func GetInterviewID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get(ContextKeyInterviewID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}
