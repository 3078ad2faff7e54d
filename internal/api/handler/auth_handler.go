package handler

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/freelancer-expense-classifier/internal/api/middleware"
	"github.com/freelancer-expense-classifier/internal/api/service"
	"github.com/freelancer-expense-classifier/internal/domain/user"
)

// AuthHandler handles HTTP requests for account and session operations
type AuthHandler struct {
	authService service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(logger *slog.Logger, authService service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register creates an account and returns its first session token
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	u, token, err := h.authService.Register(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		var dup user.ErrDuplicateEmail
		switch {
		case errors.As(err, &dup):
			RespondConflict(c, "An account with this email already exists")
		case errors.Is(err, user.ErrInvalidEmail), errors.Is(err, user.ErrWeakPassword):
			RespondBadRequest(c, err.Error())
		default:
			h.logger.Error("Failed to register account", "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondCreated(c, AuthResponse{Token: token, User: mapUserToResponse(u)})
}

// Login verifies credentials and opens a session
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	u, token, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidPassword) {
			RespondUnauthorized(c, "Invalid email or password")
			return
		}
		h.logger.Error("Failed to log in", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, AuthResponse{Token: token, User: mapUserToResponse(u)})
}

// Logout revokes the caller's session token
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		RespondUnauthorized(c, "")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		h.logger.Error("Failed to log out", "error", err)
		RespondInternalError(c)
		return
	}
	RespondNoContent(c)
}

// Me returns the authenticated account's profile
func (h *AuthHandler) Me(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}
	RespondOK(c, mapUserToResponse(u))
}

// UpdateProfile applies a partial profile edit
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	updated, err := h.authService.UpdateProfile(c.Request.Context(), u.ID, user.ProfileUpdate{
		FullName:     req.FullName,
		BusinessType: req.BusinessType,
		BusinessName: req.BusinessName,
	})
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound{}) {
			RespondNotFound(c, "Account not found")
			return
		}
		h.logger.Error("Failed to update profile", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapUserToResponse(updated))
}
