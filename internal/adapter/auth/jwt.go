package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = domain.ErrInvalidToken
	ErrTokenExpired = domain.ErrTokenExpired
)

const tokenTypeAccess = "access"

// TokenService issues and validates HS256 access tokens carrying the actor id
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service; ttl applies to generated tokens
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateAccessToken signs a token for userID
func (s *TokenService) GenerateAccessToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(s.ttl).Unix(),
		"iat":     now.Unix(),
		"type":    tokenTypeAccess,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken returns the user id of a valid access token
func (s *TokenService) ValidateAccessToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || strings.TrimSpace(userID) == "" {
		return "", ErrInvalidToken
	}
	if tokenType, _ := claims["type"].(string); tokenType != tokenTypeAccess {
		return "", ErrInvalidToken
	}

	return userID, nil
}

type contextKey string

const actorKey contextKey = "actor_id"

// WithActor stores the authenticated actor id on ctx
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFrom returns the authenticated actor id, empty when anonymous
func ActorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey).(string)
	return id
}
