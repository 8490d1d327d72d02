package user

import (
	"context"
	"errors"
	"fmt"

	"gamezone/internal/app/session"

	"gorm.io/gorm"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	DeleteDetachingSessions(ctx context.Context, u *User) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *repository) Create(ctx context.Context, u *User) error {
	err := r.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	return err
}

// DeleteDetachingSessions removes the account but keeps its sessions: the contact details
// are copied into empty visitor fields, then the owner reference is cleared.
func (r *repository) DeleteDetachingSessions(ctx context.Context, u *User) (int64, error) {
	var detached int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&session.Session{}).
			Where("user_id = ?", u.ID).
			Updates(map[string]interface{}{
				"visitor_name":  gorm.Expr("COALESCE(NULLIF(visitor_name, ''), ?)", u.Name),
				"visitor_phone": gorm.Expr("COALESCE(NULLIF(visitor_phone, ''), ?)", u.Phone),
				"visitor_email": gorm.Expr("COALESCE(NULLIF(visitor_email, ''), ?)", u.Email),
			}).Error
		if err != nil {
			return fmt.Errorf("snapshot visitor details: %w", err)
		}

		res := tx.Model(&session.Session{}).
			Where("user_id = ?", u.ID).
			Update("user_id", nil)
		if res.Error != nil {
			return fmt.Errorf("detach sessions: %w", res.Error)
		}
		detached = res.RowsAffected

		res = tx.Where("id = ?", u.ID).Delete(&User{})
		if res.Error != nil {
			return fmt.Errorf("delete user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return detached, nil
}
