package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockai/mockai-backend/internal/config"
)

func newAuth() *AuthService {
	return NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func TestTokenRoundTrip(t *testing.T) {
	auth := newAuth()
	id := uuid.New()

	tok, err := auth.GenerateToken(id, TokenTypeCandidate)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeCandidate, claims.TokenType)
	assert.Equal(t, id.String(), claims.InterviewID)
	assert.NoError(t, auth.Authorize(claims, TokenTypeCandidate, id))
}

func TestAuthorizeRejectsOtherInterviewAndType(t *testing.T) {
	auth := newAuth()
	id := uuid.New()

	tok, err := auth.GenerateToken(id, TokenTypeObserver)
	require.NoError(t, err)
	claims, err := auth.ValidateToken(tok)
	require.NoError(t, err)

	assert.ErrorIs(t, auth.Authorize(claims, TokenTypeCandidate, id), ErrTokenWrongType)
	assert.ErrorIs(t, auth.Authorize(claims, TokenTypeObserver, uuid.New()), ErrTokenWrongInterview)
}

func TestValidateTokenExpired(t *testing.T) {
	auth := newAuth()
	tok, err := auth.GenerateToken(uuid.New(), TokenTypeCandidate)
	require.NoError(t, err)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.ValidateToken(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	tok, err := newAuth().GenerateToken(uuid.New(), TokenTypeCandidate)
	require.NoError(t, err)

	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour})
	_, err = other.ValidateToken(tok)
	assert.Error(t, err)
}
