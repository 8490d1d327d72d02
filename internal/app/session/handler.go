package session

import (
	"context"
	"errors"
	"net/http"

	"gamezone/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SweepRunner runs one sweep, coordinating with other instances.
type SweepRunner interface {
	RunOnce(ctx context.Context) (*SweepResult, error)
}

type Handler interface {
	CreateSession(c *gin.Context)
	ListSessions(c *gin.Context)
	GetSession(c *gin.Context)
	EndSession(c *gin.Context)
	IssueExitCredential(c *gin.Context)
	Exit(c *gin.Context)
	AutoExtend(c *gin.Context)
	DeleteSession(c *gin.Context)
	ExportSessions(c *gin.Context)
}

type handler struct {
	service  Service
	exporter *Exporter
	sweeper  SweepRunner
	logger   *zap.SugaredLogger
}

func NewHandler(service Service, exporter *Exporter, sweeper SweepRunner, logger *zap.Logger) Handler {
	return &handler{
		service:  service,
		exporter: exporter,
		sweeper:  sweeper,
		logger:   logger.Sugar(),
	}
}

// @Summary Book a game slot
// @Tags Session
// @Accept json
// @Produce json
// @Param body body CreateSessionRequest true "Booking"
// @Success 201 {object} Session
// @Failure 400 {object} ErrorResponse
// @Router /api/sessions [post]
func (h *handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	input := CreateInput{
		GameID:  req.GameID,
		Players: req.Players,
		Visitor: req.Visitor,
		GroupID: req.GroupID,
	}
	if userID, role := middleware.CurrentUser(c); role == middleware.RoleVisitor {
		if req.GroupID != "" {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "only staff can extend a visit"})
			return
		}
		input.UserID = &userID
	}

	sess, err := h.service.CreateSession(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// @Summary List visits
// @Tags Session
// @Produce json
// @Param status query string false "active, ended or all"
// @Success 200 {array} GroupedRow
// @Router /api/sessions [get]
func (h *handler) ListSessions(c *gin.Context) {
	view, ok := ParseView(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status must be active, ended or all"})
		return
	}

	groups, err := h.service.ListGroups(c.Request.Context(), view)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *handler) GetSession(c *gin.Context) {
	sess, ok := h.loadVisible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess)
}

// @Summary End a session now
// @Tags Session
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} EndResult
// @Failure 404 {object} ErrorResponse
// @Router /api/sessions/{id}/end [post]
func (h *handler) EndSession(c *gin.Context) {
	res, err := h.service.EndSession(c.Request.Context(), c.Param("id"), h.service.Now(), CloseManual)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) IssueExitCredential(c *gin.Context) {
	sess, ok := h.loadVisible(c)
	if !ok {
		return
	}

	token, err := h.service.GenerateExitCredential(c.Request.Context(), sess.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ExitCredentialResponse{Token: token, URL: h.service.ExitURL(token)})
}

// @Summary Redeem an exit code
// @Tags Session
// @Accept json
// @Produce json
// @Param token query string false "Exit code"
// @Success 200 {object} ExitResult
// @Failure 404 {object} ErrorResponse
// @Router /api/exit [post]
func (h *handler) Exit(c *gin.Context) {
	req := ExitRequest{Token: c.Query("token")}
	if req.Token == "" && c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	res, err := h.service.ResolveExitToken(c.Request.Context(), req.Token)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) AutoExtend(c *gin.Context) {
	res, err := h.sweeper.RunOnce(c.Request.Context())
	if errors.Is(err, ErrSweepInFlight) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) DeleteSession(c *gin.Context) {
	if err := h.service.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) ExportSessions(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "export storage is not configured"})
		return
	}
	view, ok := ParseView(c.DefaultQuery("status", string(ViewAll)))
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status must be active, ended or all"})
		return
	}

	res, err := h.exporter.Export(c.Request.Context(), view)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// loadVisible hides sessions owned by someone else behind a 404.
func (h *handler) loadVisible(c *gin.Context) (*Session, bool) {
	sess, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}

	userID, role := middleware.CurrentUser(c)
	if middleware.IsStaff(role) {
		return sess, true
	}
	if sess.UserID == nil || *sess.UserID != userID {
		h.respondError(c, ErrNotFound)
		return nil, false
	}
	return sess, true
}

func (h *handler) respondError(c *gin.Context, err error) {
	var storage *StorageError
	switch {
	case errors.Is(err, ErrInvalidToken):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid or expired code"})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
	case errors.Is(err, ErrGameNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "game not found"})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &storage):
		h.logger.Errorw("Session storage failure", "path", c.FullPath(), "op", storage.Op, "error", storage.Err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable, please retry"})
	default:
		h.logger.Errorw("Unhandled session error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
