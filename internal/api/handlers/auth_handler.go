package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

// AuthHandler serves admin console login.
type AuthHandler struct {
	adminRepo  repository.AdminRepository
	jwtManager *auth.JWTManager
	logger     *logger.Logger
}

func NewAuthHandler(adminRepo repository.AdminRepository, jwtManager *auth.JWTManager, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{
		adminRepo:  adminRepo,
		jwtManager: jwtManager,
		logger:     log,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresIn int64             `json:"expires_in"` // seconds
	User      AdminUserResponse `json:"user"`
}

type AdminUserResponse struct {
	ID          uint       `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "Username and password are required")
		return
	}

	admin, err := h.adminRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		h.logger.Warn("Login attempt for unknown admin %s", req.Username)
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}

	if !admin.IsActive {
		h.logger.Warn("Login attempt for disabled admin %s", req.Username)
		respondError(w, http.StatusUnauthorized, "account_disabled", "Account is disabled")
		return
	}

	if !admin.CheckPassword(req.Password) {
		h.logger.Warn("Failed login attempt for admin %s", req.Username)
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	}

	token, err := h.jwtManager.GenerateToken(admin)
	if err != nil {
		h.logger.Error("Failed to generate token: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to generate token")
		return
	}

	if err := h.adminRepo.UpdateLastLogin(r.Context(), admin.ID, time.Now().UTC()); err != nil {
		h.logger.Warn("Failed to update last login of admin %d: %v", admin.ID, err)
	}

	h.logger.Info("Admin %s logged in (role %s)", admin.Username, admin.Role)

	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: int64(h.jwtManager.TokenDuration().Seconds()),
		User: AdminUserResponse{
			ID:          admin.ID,
			Username:    admin.Username,
			Email:       admin.Email,
			Role:        string(admin.Role),
			IsActive:    admin.IsActive,
			LastLoginAt: admin.LastLoginAt,
		},
	})
}

// Me returns the admin behind the current token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := auth.FromContext(r.Context())
	if principal == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}
	if principal.AdminID == 0 {
		respondError(w, http.StatusForbidden, "forbidden", "Not an admin session")
		return
	}

	admin, err := h.adminRepo.GetByID(r.Context(), principal.AdminID)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "Admin not found")
		return
	}
	if !admin.IsActive {
		respondError(w, http.StatusUnauthorized, "account_disabled", "Account is disabled")
		return
	}

	respondJSON(w, http.StatusOK, AdminUserResponse{
		ID:          admin.ID,
		Username:    admin.Username,
		Email:       admin.Email,
		Role:        string(admin.Role),
		IsActive:    admin.IsActive,
		LastLoginAt: admin.LastLoginAt,
	})
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization header")
		return
	}

	tokenString, err := auth.ExtractTokenFromBearer(authHeader)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_header", "Invalid authorization header")
		return
	}

	newToken, err := h.jwtManager.RefreshToken(tokenString)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      newToken,
		"expires_in": int64(h.jwtManager.TokenDuration().Seconds()),
	})
}
