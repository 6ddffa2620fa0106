package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/socialhub/backend/internal/metrics"
	"github.com/socialhub/backend/internal/model"
	"github.com/socialhub/backend/internal/service"
)

type AuthHandler struct {
	svc       *service.AuthService
	extractor TokenExtractor
	metrics   *metrics.Registry
	logger    *zap.Logger
}

func NewAuthHandler(svc *service.AuthService, extractor TokenExtractor, m *metrics.Registry, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, extractor: extractor, metrics: m, logger: logger}
}

// Register godoc
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Account details"
// @Success 201 {object} model.AuthResponse
// @Failure 400 {object} model.Envelope
// @Failure 409 {object} model.Envelope
// @Failure 503 {object} model.Envelope
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	session, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		Bio:             req.Bio,
		ProfileImageURL: req.ProfileImageURL,
	})
	if err != nil {
		h.recordOutcome("register", err)
		writeAuthError(c, h.logger, err)
		return
	}

	h.metrics.AuthEvent("register", metrics.OutcomeSuccess)
	h.setTokenCookie(c, session.Token)
	c.JSON(http.StatusCreated, model.AuthResponse{
		Success:   true,
		Message:   "user registered",
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      session.User,
	})
}

// Login godoc
// @Summary Login with email or username
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Identifier and password"
// @Success 200 {object} model.AuthResponse
// @Failure 400 {object} model.Envelope
// @Failure 401 {object} model.Envelope
// @Failure 503 {object} model.Envelope
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	session, err := h.svc.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		h.recordOutcome("login", err)
		writeAuthError(c, h.logger, err)
		return
	}

	h.metrics.AuthEvent("login", metrics.OutcomeSuccess)
	h.setTokenCookie(c, session.Token)
	c.JSON(http.StatusOK, model.AuthResponse{
		Success:   true,
		Message:   "login successful",
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      session.User,
	})
}

// Logout godoc
// @Summary Logout
// @Description Revokes the presented token until it expires and clears the cookie.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.Envelope
// @Failure 400 {object} model.Envelope
// @Failure 401 {object} model.Envelope
// @Failure 503 {object} model.Envelope
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := h.extractor.Extract(c)
	if token == "" {
		writeMessage(c, http.StatusBadRequest, "token required")
		return
	}

	if err := h.svc.Logout(c.Request.Context(), token); err != nil {
		h.recordOutcome("logout", err)
		writeAuthError(c, h.logger, err)
		return
	}

	h.metrics.AuthEvent("logout", metrics.OutcomeSuccess)
	h.clearTokenCookie(c)
	writeMessage(c, http.StatusOK, "logged out")
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.UserResponse
// @Failure 401 {object} model.Envelope
// @Failure 404 {object} model.Envelope
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	authUser := GetAuthUser(c)
	if authUser == nil {
		writeMessage(c, http.StatusUnauthorized, msgNotAuthorized)
		return
	}

	user, err := h.svc.Me(c.Request.Context(), authUser.ID)
	if err != nil {
		writeAuthError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, model.UserResponse{Success: true, Message: "ok", User: user})
}

// UpdateMe godoc
// @Summary Update profile
// @Description Applies only the fields present in the body.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.ProfileUpdate true "Profile fields"
// @Success 200 {object} model.UserResponse
// @Failure 400 {object} model.Envelope
// @Failure 401 {object} model.Envelope
// @Failure 404 {object} model.Envelope
// @Failure 409 {object} model.Envelope
// @Router /api/v1/auth/me [patch]
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	authUser := GetAuthUser(c)
	if authUser == nil {
		writeMessage(c, http.StatusUnauthorized, msgNotAuthorized)
		return
	}

	var req model.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		writeMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	user, err := h.svc.UpdateProfile(c.Request.Context(), authUser.ID, req)
	if err != nil {
		writeAuthError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, model.UserResponse{Success: true, Message: "profile updated", User: user})
}

// ChangePassword godoc
// @Summary Change password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.ChangePasswordRequest true "Current and new password"
// @Success 200 {object} model.Envelope
// @Failure 400 {object} model.Envelope
// @Failure 401 {object} model.Envelope
// @Router /api/v1/auth/password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	authUser := GetAuthUser(c)
	if authUser == nil {
		writeMessage(c, http.StatusUnauthorized, msgNotAuthorized)
		return
	}

	var req model.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), authUser.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeAuthError(c, h.logger, err)
		return
	}
	writeMessage(c, http.StatusOK, "password changed")
}

// ForgotPassword godoc
// @Summary Request a password reset token
// @Description Always succeeds so callers cannot probe which emails exist.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.ForgotPasswordRequest true "Account email"
// @Success 200 {object} model.ResetTokenResponse
// @Failure 400 {object} model.Envelope
// @Router /api/v1/auth/password/forgot [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req model.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	token, err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		writeAuthError(c, h.logger, err)
		return
	}

	resp := model.ResetTokenResponse{Success: true, Message: "if the email exists, a reset token was issued"}
	if h.svc.ExposeTokens() {
		resp.Token = token
	}
	c.JSON(http.StatusOK, resp)
}

// ResetPassword godoc
// @Summary Reset password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.ResetPasswordRequest true "Reset token and new password"
// @Success 200 {object} model.Envelope
// @Failure 400 {object} model.Envelope
// @Router /api/v1/auth/password/reset [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req model.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeAuthError(c, h.logger, err)
		return
	}
	writeMessage(c, http.StatusOK, "password reset")
}

// RequestEmailVerification godoc
// @Summary Request an email verification token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ResetTokenResponse
// @Failure 401 {object} model.Envelope
// @Failure 404 {object} model.Envelope
// @Router /api/v1/auth/email/verify/request [post]
func (h *AuthHandler) RequestEmailVerification(c *gin.Context) {
	authUser := GetAuthUser(c)
	if authUser == nil {
		writeMessage(c, http.StatusUnauthorized, msgNotAuthorized)
		return
	}

	token, err := h.svc.RequestEmailVerification(c.Request.Context(), authUser.ID)
	if err != nil {
		writeAuthError(c, h.logger, err)
		return
	}

	resp := model.ResetTokenResponse{Success: true, Message: "verification token issued"}
	if h.svc.ExposeTokens() {
		resp.Token = token
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyEmail godoc
// @Summary Confirm an email address
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.VerifyEmailRequest true "Verification token"
// @Success 200 {object} model.Envelope
// @Failure 400 {object} model.Envelope
// @Router /api/v1/auth/email/verify [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req model.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeMessage(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	if err := h.svc.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		writeAuthError(c, h.logger, err)
		return
	}
	writeMessage(c, http.StatusOK, "email verified")
}

func (h *AuthHandler) recordOutcome(event string, err error) {
	if errors.Is(err, service.ErrUnauthorized) || errors.Is(err, service.ErrConflict) || errors.Is(err, service.ErrInvalidInput) {
		h.metrics.AuthEvent(event, metrics.OutcomeFailure)
		return
	}
	h.metrics.AuthEvent(event, metrics.OutcomeError)
}

func (h *AuthHandler) setTokenCookie(c *gin.Context, token string) {
	if !h.extractor.UsesCookie() {
		return
	}
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, token, cfg.MaxAge, cfg.Path, cfg.Domain, cfg.Secure, true)
}

func (h *AuthHandler) clearTokenCookie(c *gin.Context) {
	if !h.extractor.UsesCookie() {
		return
	}
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
}
