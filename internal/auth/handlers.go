package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mapcore/server/internal/config"
)

// AuthHandlers exchanges the operator credential for tokens and guards
// routes with them
type AuthHandlers struct {
	jwtService      *JWTService
	passwordService *PasswordService
	validator       *validator.Validate
	adminUsername   string
	adminHash       string
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(cfg *config.Config, jwtService *JWTService, passwordService *PasswordService) *AuthHandlers {
	return &AuthHandlers{
		jwtService:      jwtService,
		passwordService: passwordService,
		validator:       validator.New(),
		adminUsername:   cfg.Auth.AdminUsername,
		adminHash:       cfg.Auth.AdminPasswordHash,
	}
}

// Token exchanges operator credentials for an access token
// POST /api/auth/token
func (h *AuthHandlers) Token(w http.ResponseWriter, r *http.Request) {
	if h.adminHash == "" {
		h.sendError(w, http.StatusServiceUnavailable, "AuthDisabled", "No operator credential is configured")
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "InvalidRequest", "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.sendValidationError(w, err)
		return
	}

	// The hash is always checked so that unknown usernames cost the same
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.adminUsername)) == 1
	passOK := h.passwordService.VerifyPassword(req.Password, h.adminHash)
	if !userOK || !passOK {
		log.Printf("[Auth] Rejected token request for %q", req.Username)
		h.sendError(w, http.StatusUnauthorized, "InvalidCredentials", "Invalid username or password")
		return
	}

	token, tokenID, err := h.jwtService.GenerateToken(h.adminUsername, RoleAdmin)
	if err != nil {
		log.Printf("Error generating access token: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		log.Printf("Error validating fresh token: %v", err)
		h.sendError(w, http.StatusInternalServerError, "InternalError", "Failed to generate token")
		return
	}

	log.Printf("[Auth] Issued token %s to %s", tokenID, h.adminUsername)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: token,
		TokenID:     tokenID,
		ExpiresAt:   claims.ExpiresAt.Time,
		Username:    h.adminUsername,
		Role:        RoleAdmin,
	})
}

func (h *AuthHandlers) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Code:    code,
	})
}

func (h *AuthHandlers) sendValidationError(w http.ResponseWriter, err error) {
	h.sendError(w, http.StatusBadRequest, "ValidationError", ValidationMessage(err))
}

// ValidationMessage renders validator errors as "Field: reason" pairs
func ValidationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	messages := make([]string, 0, len(ve))
	for _, fe := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", fe.Field(), getValidationMessage(fe)))
	}
	return strings.Join(messages, "; ")
}

func getValidationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must have exactly %s elements", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
