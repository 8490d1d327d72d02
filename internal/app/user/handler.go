package user

import (
	"errors"
	"net/http"
	"time"

	"gamezone/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler interface {
	Login(c *gin.Context)
	Logout(c *gin.Context)
	Me(c *gin.Context)
	CreateUser(c *gin.Context)
	DeleteUser(c *gin.Context)
}

type handler struct {
	service      Service
	logger       *zap.SugaredLogger
	secureCookie bool
}

func NewHandler(service Service, logger *zap.Logger, secureCookie bool) Handler {
	return &handler{
		service:      service,
		logger:       logger.Sugar(),
		secureCookie: secureCookie,
	}
}

// @Summary Sign in
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/auth/login [post]
func (h *handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "email and password are required"})
		return
	}

	res, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Errorw("Login failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "login failed"})
		return
	}

	maxAge := int(time.Until(res.ExpiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, res.Token, maxAge, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, res)
}

func (h *handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.secureCookie, true)
	c.Status(http.StatusNoContent)
}

func (h *handler) Me(c *gin.Context) {
	userID, _ := middleware.CurrentUser(c)
	u, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	u, err := h.service.CreateUser(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// @Summary Delete an account
// @Description Sessions owned by the account are kept with its contact details copied in.
// @Tags User
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} DeleteResult
// @Failure 404 {object} ErrorResponse
// @Router /api/admin/users/{id} [delete]
func (h *handler) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if self, _ := middleware.CurrentUser(c); self == id {
		h.fail(c, ErrSelfDelete)
		return
	}

	res, err := h.service.DeleteUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrSelfDelete):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Errorw("User request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable, please retry"})
	}
}
