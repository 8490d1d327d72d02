package game

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("game not found")
	ErrValidation    = errors.New("invalid game")
	ErrDuplicateName = errors.New("game name already taken")
)

type Game struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name            string    `json:"name" gorm:"uniqueIndex;not null"`
	Description     *string   `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes" gorm:"not null"`
	MaxPlayers      int       `json:"max_players" gorm:"not null"`
	Active          bool      `json:"active" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration is the length of one booked slot.
func (g *Game) Duration() time.Duration {
	return time.Duration(g.DurationMinutes) * time.Minute
}

type CreateGameInput struct {
	Name            string  `json:"name" validate:"required,max=80"`
	Description     *string `json:"description" validate:"omitempty,max=500"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,min=1,max=1440"`
	MaxPlayers      int     `json:"max_players" validate:"required,min=1,max=64"`
	Active          *bool   `json:"active"`
}

type UpdateGameInput struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=80"`
	Description     *string `json:"description" validate:"omitempty,max=500"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=1,max=1440"`
	MaxPlayers      *int    `json:"max_players" validate:"omitempty,min=1,max=64"`
	Active          *bool   `json:"active"`
}

type GameListResponse struct {
	Games []*Game `json:"games"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
