package seeder

import (
	"context"
	"errors"

	"gamezone/internal/app/game"
	"gamezone/internal/app/user"

	"go.uber.org/zap"
)

type AdminAccount struct {
	Email    string
	Password string
}

type Seeder struct {
	games    game.Repository
	gameSvc  game.Service
	userRepo user.Repository
	userSvc  user.Service
	admin    AdminAccount
	logger   *zap.Logger
}

func NewSeeder(games game.Repository, gameSvc game.Service, userRepo user.Repository, userSvc user.Service, admin AdminAccount, logger *zap.Logger) *Seeder {
	return &Seeder{
		games:    games,
		gameSvc:  gameSvc,
		userRepo: userRepo,
		userSvc:  userSvc,
		admin:    admin,
		logger:   logger,
	}
}

func (s *Seeder) Seed(ctx context.Context) error {
	s.logger.Info("Running database seeders...")

	if err := s.seedGames(ctx); err != nil {
		return err
	}
	if err := s.seedAdmin(ctx); err != nil {
		return err
	}

	s.logger.Info("Database seeders completed successfully")
	return nil
}

func (s *Seeder) seedGames(ctx context.Context) error {
	count, err := s.games.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		s.logger.Info("Games already exist, skipping seed")
		return nil
	}

	catalog := []game.CreateGameInput{
		{Name: "Pool", Description: ptr("Eight-ball table"), DurationMinutes: 60, MaxPlayers: 4},
		{Name: "Darts", Description: ptr("Electronic dartboard"), DurationMinutes: 30, MaxPlayers: 6},
		{Name: "Air Hockey", DurationMinutes: 15, MaxPlayers: 2},
		{Name: "VR Arena", Description: ptr("Headsets included"), DurationMinutes: 45, MaxPlayers: 4},
		{Name: "Console Lounge", DurationMinutes: 60, MaxPlayers: 4},
	}
	for _, input := range catalog {
		if _, err := s.gameSvc.CreateGame(ctx, input); err != nil {
			return err
		}
	}

	s.logger.Info("Seeded games", zap.Int("count", len(catalog)))
	return nil
}

func (s *Seeder) seedAdmin(ctx context.Context) error {
	if s.admin.Email == "" || s.admin.Password == "" {
		s.logger.Info("ADMIN_EMAIL not set, skipping admin seed")
		return nil
	}

	_, err := s.userRepo.GetByEmail(ctx, s.admin.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	u, err := s.userSvc.CreateUser(ctx, user.CreateUserRequest{
		Email:    s.admin.Email,
		Name:     "Administrator",
		Role:     user.RoleAdmin,
		Password: s.admin.Password,
	})
	if err != nil {
		return err
	}

	s.logger.Info("Seeded admin account", zap.String("user_id", u.ID))
	return nil
}

func ptr(s string) *string {
	return &s
}
