package game

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service interface {
	ListGames(ctx context.Context, includeInactive bool) ([]*Game, error)
	GetGame(ctx context.Context, id string) (*Game, error)
	CreateGame(ctx context.Context, input CreateGameInput) (*Game, error)
	UpdateGame(ctx context.Context, id string, input UpdateGameInput) (*Game, error)
}

type service struct {
	repo     Repository
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	return &service{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.Sugar(),
	}
}

func (s *service) ListGames(ctx context.Context, includeInactive bool) ([]*Game, error) {
	return s.repo.List(ctx, includeInactive)
}

func (s *service) GetGame(ctx context.Context, id string) (*Game, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) CreateGame(ctx context.Context, input CreateGameInput) (*Game, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	g := &Game{
		ID:              uuid.NewString(),
		Name:            input.Name,
		Description:     input.Description,
		DurationMinutes: input.DurationMinutes,
		MaxPlayers:      input.MaxPlayers,
		Active:          true,
	}
	if input.Active != nil {
		g.Active = *input.Active
	}

	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}

	s.logger.Infow("Game created", "game_id", g.ID, "name", g.Name, "duration_minutes", g.DurationMinutes)
	return g, nil
}

func (s *service) UpdateGame(ctx context.Context, id string, input UpdateGameInput) (*Game, error) {
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	g, err := s.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		g.Name = *input.Name
	}
	if input.Description != nil {
		g.Description = input.Description
	}
	if input.DurationMinutes != nil {
		g.DurationMinutes = *input.DurationMinutes
	}
	if input.MaxPlayers != nil {
		g.MaxPlayers = *input.MaxPlayers
	}
	if input.Active != nil {
		g.Active = *input.Active
	}

	if err := s.repo.Save(ctx, g); err != nil {
		return nil, err
	}

	s.logger.Infow("Game updated", "game_id", g.ID, "active", g.Active)
	return g, nil
}
