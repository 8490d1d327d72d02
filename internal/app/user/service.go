package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamezone/internal/middleware"
	"gamezone/internal/providers/redis"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	DeleteUser(ctx context.Context, id string) (*DeleteResult, error)
}

type Options struct {
	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int
	CacheTTL   time.Duration
	Clock      clockwork.Clock
}

type service struct {
	repo   Repository
	redisP *redis.RedisProvider
	logger *zap.SugaredLogger
	opts   Options
}

func NewService(repo Repository, redisP *redis.RedisProvider, logger *zap.Logger, opts Options) Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.JWTTTL <= 0 {
		opts.JWTTTL = 12 * time.Hour
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &service{
		repo:   repo,
		redisP: redisP,
		logger: logger.Sugar(),
		opts:   opts,
	}
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Warnw("Login rejected", "user_id", u.ID)
		return nil, ErrInvalidCredentials
	}

	token, expires, err := middleware.IssueToken(s.opts.JWTSecret, u.ID, string(u.Role), s.opts.JWTTTL, s.opts.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.logger.Infow("User logged in", "user_id", u.ID, "role", u.Role)
	return &LoginResponse{Token: token, ExpiresAt: expires, User: u}, nil
}

func (s *service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(req.Email),
		Name:         strings.TrimSpace(req.Name),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         req.Role,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Infow("User created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *service) GetUser(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	cacheKey := "user:" + id
	if s.redisP != nil {
		if cached, err := s.redisP.Get(ctx, cacheKey).Result(); err == nil {
			var u User
			if json.Unmarshal([]byte(cached), &u) == nil {
				return &u, nil
			}
		}
	}

	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.redisP != nil {
		if data, err := json.Marshal(u); err == nil {
			s.redisP.SetEX(ctx, cacheKey, data, s.opts.CacheTTL)
		}
	}
	return u, nil
}

func (s *service) DeleteUser(ctx context.Context, id string) (*DeleteResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detached, err := s.repo.DeleteDetachingSessions(ctx, u)
	if err != nil {
		return nil, err
	}

	if s.redisP != nil {
		s.redisP.Del(ctx, "user:"+id)
	}

	s.logger.Infow("User deleted", "user_id", id, "detached_sessions", detached)
	return &DeleteResult{UserID: id, DetachedSessions: detached}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
