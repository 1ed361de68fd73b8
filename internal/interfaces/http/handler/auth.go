// Package handler contains the gin HTTP handlers. Each endpoint's
// request and response is a distinct typed DTO; unknown or malformed
// input is rejected at binding time.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/application/identity"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/interfaces/http/dto"
	"github.com/saasbooks/backend/internal/interfaces/http/middleware"
)

// AuthHandler serves the authentication endpoints.
type AuthHandler struct {
	auth       *identity.AuthService
	hostSuffix string
}

// NewAuthHandler creates an auth handler. hostSuffix maps request
// hosts to tenant slugs for login.
func NewAuthHandler(auth *identity.AuthService, hostSuffix string) *AuthHandler {
	return &AuthHandler{auth: auth, hostSuffix: hostSuffix}
}

// LoginRequest is the login payload. TenantSlug may be omitted when
// the tenant is identified by the request host.
type LoginRequest struct {
	TenantSlug string `json:"tenant_slug" binding:"omitempty,slug"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
}

// TokenResponse carries an issued token pair.
type TokenResponse struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	TokenType             string    `json:"token_type"`
}

// UserResponse is the user projection.
type UserResponse struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// TenantResponse is the tenant projection returned on login.
type TenantResponse struct {
	ID     uuid.UUID `json:"id"`
	Slug   string    `json:"slug"`
	Name   string    `json:"name"`
	Plan   string    `json:"plan"`
	Status string    `json:"status"`
}

// LoginResponse is the login result.
type LoginResponse struct {
	User       UserResponse              `json:"user"`
	Tenant     *TenantResponse           `json:"tenant,omitempty"`
	Tokens     TokenResponse             `json:"tokens"`
	Navigation identity.NavigationResult `json:"navigation"`
}

// Login exchanges credentials for a token pair and the role-derived
// navigation.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "invalid login payload")
		return
	}

	slug := req.TenantSlug
	if slug == "" {
		slug = middleware.TenantSlugFromHost(c.Request.Host, h.hostSuffix)
	}

	result, err := h.auth.Login(c.Request.Context(), identity.LoginInput{
		TenantSlug: slug,
		Email:      req.Email,
		Password:   req.Password,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		dto.Error(c, err)
		return
	}

	resp := LoginResponse{
		User: userResponse(result.User),
		Tokens: TokenResponse{
			AccessToken:           result.AccessToken,
			RefreshToken:          result.RefreshToken,
			AccessTokenExpiresAt:  result.AccessTokenExpiresAt,
			RefreshTokenExpiresAt: result.RefreshTokenExpiresAt,
			TokenType:             result.TokenType,
		},
		Navigation: result.Navigation,
	}
	if result.Tenant != nil {
		resp.Tenant = &TenantResponse{
			ID:     result.Tenant.ID,
			Slug:   result.Tenant.Slug,
			Name:   result.Tenant.Name,
			Plan:   result.Tenant.Plan,
			Status: string(result.Tenant.Status),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// RefreshRequest is the token refresh payload.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates a token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.ErrorWith(c, shared.KindValidationFailed, "invalid refresh payload")
		return
	}

	result, err := h.auth.RefreshToken(c.Request.Context(), identity.RefreshTokenInput{
		RefreshToken: req.RefreshToken,
		IP:           c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if err != nil {
		dto.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:           result.AccessToken,
		RefreshToken:          result.RefreshToken,
		AccessTokenExpiresAt:  result.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: result.RefreshTokenExpiresAt,
		TokenType:             result.TokenType,
	})
}

// Logout revokes the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		dto.Error(c, shared.ErrUnauthenticated)
		return
	}

	err := h.auth.Logout(c.Request.Context(), identity.LogoutInput{
		UserID:    p.UserID,
		TenantID:  p.TenantID,
		SessionID: p.SessionID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		dto.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Navigation returns the navigation and permissions for the current
// principal.
func (h *AuthHandler) Navigation(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		dto.Error(c, shared.ErrUnauthenticated)
		return
	}
	c.JSON(http.StatusOK, h.auth.Navigation(p.Role))
}

// CurrentUser returns the current principal's user projection.
func (h *AuthHandler) CurrentUser(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		dto.Error(c, shared.ErrUnauthenticated)
		return
	}

	result, err := h.auth.GetCurrentUser(c.Request.Context(), identity.GetCurrentUserInput{UserID: p.UserID})
	if err != nil {
		dto.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":       userResponse(result.User),
		"navigation": result.Navigation,
	})
}

func userResponse(u identity.UserInfo) UserResponse {
	return UserResponse{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
	}
}
