package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mapcore/server/internal/config"
)

func testJWTService(expiry time.Duration) *JWTService {
	return NewJWTService(&config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     "test_jwt_secret_key_32_bytes_long!!",
			JWTExpiration: expiry,
		},
	})
}

func TestJWTService_GenerateToken(t *testing.T) {
	service := testJWTService(15 * time.Minute)

	token, tokenID, err := service.GenerateToken("operator", RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	if token == "" {
		t.Fatal("GenerateToken() returned empty token")
	}
	if _, err := uuid.Parse(tokenID); err != nil {
		t.Errorf("token ID %q is not a uuid: %v", tokenID, err)
	}

	claims, err := service.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() failed: %v", err)
	}
	if claims.Username != "operator" {
		t.Errorf("Expected Username 'operator', got %s", claims.Username)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Expected Role %q, got %s", RoleAdmin, claims.Role)
	}
	if claims.Issuer != tokenIssuer {
		t.Errorf("Expected Issuer %q, got %s", tokenIssuer, claims.Issuer)
	}
	if claims.ID != tokenID {
		t.Errorf("Expected ID %s, got %s", tokenID, claims.ID)
	}
}

func TestJWTService_GenerateTokenRequiresUsername(t *testing.T) {
	if _, _, err := testJWTService(time.Minute).GenerateToken("", RoleAdmin); err == nil {
		t.Error("expected error for empty username")
	}
}

func TestJWTService_UniqueTokenIDs(t *testing.T) {
	service := testJWTService(time.Minute)
	_, first, err := service.GenerateToken("operator", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := service.GenerateToken("operator", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("token IDs should be unique")
	}
}

func TestJWTService_ValidateToken_Invalid(t *testing.T) {
	service := testJWTService(15 * time.Minute)
	token, _, err := service.GenerateToken("operator", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	other := NewJWTService(&config.Config{
		Auth: config.AuthConfig{JWTSecret: "a_different_secret_of_some_length", JWTExpiration: time.Minute},
	})

	foreignIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Username: "operator",
		Role:     RoleAdmin,
	})
	foreignToken, err := foreignIssuer.SignedString(service.secret)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		service *JWTService
		token   string
	}{
		{"garbage", service, "invalid.token.here"},
		{"empty", service, ""},
		{"wrong secret", other, token},
		{"tampered", service, token[:len(token)-2] + "xx"},
		{"foreign issuer", service, foreignToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.service.ValidateToken(tt.token); err == nil {
				t.Error("ValidateToken() should have failed")
			}
		})
	}
}

func TestJWTService_ExpiredToken(t *testing.T) {
	service := testJWTService(time.Minute)
	issued := time.Now().Add(-time.Hour)
	service.now = func() time.Time { return issued }

	token, _, err := service.GenerateToken("operator", RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}

	service.now = time.Now
	_, err = service.ValidateToken(token)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Errorf("ValidateToken() error = %v, want expiry error", err)
	}
}

func TestJWTService_GetTokenExpiration(t *testing.T) {
	if got := testJWTService(15 * time.Minute).GetTokenExpiration(); got != 15*time.Minute {
		t.Errorf("Expected expiration 15m, got %v", got)
	}
}
