package game

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Repository interface {
	List(ctx context.Context, includeInactive bool) ([]*Game, error)
	GetByID(ctx context.Context, id string) (*Game, error)
	Create(ctx context.Context, g *Game) error
	Save(ctx context.Context, g *Game) error
	Count(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, includeInactive bool) ([]*Game, error) {
	var games []*Game
	q := r.db.WithContext(ctx).Order("name ASC")
	if !includeInactive {
		q = q.Where("active = ?", true)
	}
	if err := q.Find(&games).Error; err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return games, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*Game, error) {
	var g Game
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", id, err)
	}
	return &g, nil
}

func (r *repository) Create(ctx context.Context, g *Game) error {
	return translate(r.db.WithContext(ctx).Create(g).Error)
}

func (r *repository) Save(ctx context.Context, g *Game) error {
	return translate(r.db.WithContext(ctx).Save(g).Error)
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Game{}).Count(&n).Error
	return n, err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateName
	}
	return err
}
