package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
)

// LoginRequest is the body of POST /auth
type LoginRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// LoginResponse is returned after a successful login. JWK is only set for asymmetric
// algorithms.
type LoginResponse struct {
	JWT       string    `json:"jwt"`
	JWK       *core.JWK `json:"jwk,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JWKSet is the body of the JWKS endpoint.
type JWKSet struct {
	Keys []core.JWK `json:"keys"`
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *slog.Logger
	healthCheck func(context.Context) error
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *slog.Logger, healthCheck func(context.Context) error) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
		healthCheck: healthCheck,
	}
}

// Healthcheck reports whether the service and its store are reachable
func (h *AuthHandlers) Healthcheck(c *gin.Context) {
	if h.healthCheck != nil {
		if err := h.healthCheck(c.Request.Context()); err != nil {
			h.logger.WarnContext(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Nonce issues a new nonce for the address in the path. The body is the nonce
// itself as a JSON string.
func (h *AuthHandlers) Nonce(c *gin.Context) {
	_, nonce, err := h.authService.RequestNonce(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, nonce.Value)
}

// Login handles the signed nonce submission
func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error:   core.KindValidation.String(),
			Message: "request body must contain user_id and signature",
		})
		return
	}

	session, err := h.authService.Authenticate(c.Request.Context(), req.UserID, req.Signature)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		JWT:       session.Token.Value,
		JWK:       session.PublicKey,
		ExpiresAt: session.Token.Claims.ExpiresAt,
	})
}

// Me returns information about the authenticated account
func (h *AuthHandlers) Me(c *gin.Context) {
	claims := ClaimsFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"address": claims.Subject,
	})
}

// Verify reports that the bearer token is valid. It is meant for reverse proxies doing
// forward authentication.
func (h *AuthHandlers) Verify(c *gin.Context) {
	claims := ClaimsFrom(c)
	c.Header("X-Auth-Address", claims.Subject.String())
	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    claims.Subject,
		"expires_at": claims.ExpiresAt,
	})
}

// JWKS publishes the token verification key. The set is empty for HS256.
func (h *AuthHandlers) JWKS(c *gin.Context) {
	set := JWKSet{Keys: []core.JWK{}}
	if jwk := h.authService.PublicKey(); jwk != nil {
		set.Keys = append(set.Keys, *jwk)
	}
	c.JSON(http.StatusOK, set)
}
