package game

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler interface {
	ListGames(c *gin.Context)
	GetGame(c *gin.Context)
	CreateGame(c *gin.Context)
	UpdateGame(c *gin.Context)
}

type handler struct {
	service Service
}

func NewHandler(service Service) Handler {
	return &handler{service: service}
}

// @Summary List games
// @Tags Game
// @Produce json
// @Param all query bool false "Include inactive games"
// @Success 200 {object} GameListResponse
// @Router /api/games [get]
func (h *handler) ListGames(c *gin.Context) {
	games, err := h.service.ListGames(c.Request.Context(), c.Query("all") == "true")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch games"})
		return
	}
	c.JSON(http.StatusOK, GameListResponse{Games: games})
}

// @Summary Get game by id
// @Tags Game
// @Produce json
// @Param id path string true "Game ID"
// @Success 200 {object} Game
// @Failure 404 {object} ErrorResponse
// @Router /api/games/{id} [get]
func (h *handler) GetGame(c *gin.Context) {
	g, err := h.service.GetGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handler) CreateGame(c *gin.Context) {
	var input CreateGameInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	g, err := h.service.CreateGame(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *handler) UpdateGame(c *gin.Context) {
	var input UpdateGameInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	g, err := h.service.UpdateGame(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "game not found"})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrDuplicateName):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to process game"})
	}
}
