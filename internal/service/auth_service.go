package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mockai/mockai-backend/internal/config"
)

// Common auth errors.
var (
	ErrTokenWrongType      = errors.New("token type not accepted here")
	ErrTokenWrongInterview = errors.New("token issued for another interview")
)

// TokenType distinguishes the candidate taking an interview from someone
// watching it.
type TokenType string

const (
	TokenTypeCandidate TokenType = "candidate"
	TokenTypeObserver  TokenType = "observer"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   TokenType `json:"token_type"`
	InterviewID string    `json:"interview_id"`
}

// AuthService issues and validates per-interview tokens.
type AuthService struct {
	cfg *config.Config
	now func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg, now: time.Now}
}

// GenerateToken signs a token of type tt bound to one interview.
func (s *AuthService) GenerateToken(interviewID uuid.UUID, tt TokenType) (string, error) {
	now := s.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   interviewID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType:   tt,
		InterviewID: interviewID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// Authorize checks that claims grant tt access to interviewID.
func (s *AuthService) Authorize(claims *Claims, tt TokenType, interviewID uuid.UUID) error {
	if claims.TokenType != tt {
		return ErrTokenWrongType
	}
	if claims.InterviewID != interviewID.String() {
		return ErrTokenWrongInterview
	}
	return nil
}
