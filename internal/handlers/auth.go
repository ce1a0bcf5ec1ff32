package handlers

import (
  "fmt"
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/services"
  "github.com/askyenta/yenta-backend/internal/types"
)

type AuthHandler struct {
  log         *logger.Logger
  authService services.AuthService
}

func NewAuthHandler(log *logger.Logger, authService services.AuthService) *AuthHandler {
  return &AuthHandler{
    log:         log.With("handler", "AuthHandler"),
    authService: authService,
  }
}

type registerRequest struct {
  Email     string  `json:"email" binding:"required,email"`
  Password  string  `json:"password" binding:"required,min=8"`
  FirstName string  `json:"first_name" binding:"required"`
  LastName  string  `json:"last_name" binding:"required"`
}

// POST /api/register
func (h *AuthHandler) Register(c *gin.Context) {
  var req registerRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request", err)
    return
  }

  user := &types.User{
    Email:     req.Email,
    Password:  req.Password,
    FirstName: req.FirstName,
    LastName:  req.LastName,
  }
  if err := h.authService.RegisterUser(c.Request.Context(), user); err != nil {
    RespondError(c, http.StatusConflict, "registration_failed", err)
    return
  }
  c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
  Email     string  `json:"email" binding:"required"`
  Password  string  `json:"password" binding:"required"`
}

type tokenResponse struct {
  AccessToken   string  `json:"access_token"`
  RefreshToken  string  `json:"refresh_token"`
}

// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
  var req loginRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request", err)
    return
  }

  access, refresh, err := h.authService.LoginUser(c.Request.Context(), req.Email, req.Password)
  if err != nil {
    RespondError(c, http.StatusUnauthorized, "login_failed", err)
    return
  }
  RespondOK(c, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

type refreshRequest struct {
  RefreshToken  string  `json:"refresh_token" binding:"required"`
}

// POST /api/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
  var req refreshRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_request", err)
    return
  }

  access, refresh, err := h.authService.RefreshUser(c.Request.Context(), req.RefreshToken)
  if err != nil {
    RespondError(c, http.StatusUnauthorized, "refresh_failed", err)
    return
  }
  RespondOK(c, tokenResponse{AccessToken: access, RefreshToken: refresh})
}

// POST /api/logout
func (h *AuthHandler) Logout(c *gin.Context) {
  if err := h.authService.LogoutUser(c.Request.Context()); err != nil {
    RespondError(c, http.StatusUnauthorized, "logout_failed", fmt.Errorf("logout failed: %w", err))
    return
  }
  RespondOK(c, gin.H{"status": "logged_out"})
}
