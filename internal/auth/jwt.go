package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mapcore/server/internal/config"
)

const tokenIssuer = "mapcore-server"

// Claims represents JWT claims structure
type Claims struct {
	jwt.RegisteredClaims

	Username string `json:"username"`
	Role     string `json:"role"`
}

// JWTService issues and validates operator tokens
type JWTService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWTService creates a new JWT service with configuration
func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Auth.JWTSecret),
		expiry: cfg.Auth.JWTExpiration,
		now:    time.Now,
	}
}

// GenerateToken signs a token for username with role. It returns the
// signed token and its ID.
func (s *JWTService) GenerateToken(username, role string) (string, string, error) {
	if username == "" {
		return "", "", errors.New("username is required")
	}
	now := s.now()
	tokenID := uuid.NewString()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        tokenID,
		},
		Username: username,
		Role:     role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, tokenID, nil
}

// ValidateToken validates a token and returns its claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, errors.New("invalid token id")
	}
	return claims, nil
}

// GetTokenExpiration returns the lifetime of issued tokens
func (s *JWTService) GetTokenExpiration() time.Duration {
	return s.expiry
}
