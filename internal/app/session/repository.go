package session

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repository is the session store. Every state transition is a conditional update whose
// boolean/count result tells the caller whether it won.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	ListByGroup(ctx context.Context, groupID string) ([]*Session, error)
	ListByExitToken(ctx context.Context, token string) ([]*Session, error)
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]*Session, error)
	List(ctx context.Context, filter ListFilter) ([]*Session, error)
	HasSuccessor(ctx context.Context, groupID string, from time.Time, excludeID string) (bool, error)
	MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error)
	AssignGroup(ctx context.Context, id, groupID string) (bool, error)
	AssignExitToken(ctx context.Context, id string, groupID *string, token string) (int64, error)
	Delete(ctx context.Context, id string) (bool, error)
	Transaction(ctx context.Context, fn func(tx Repository) error) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, s *Session) error {
	return storageErr("create", r.db.WithContext(ctx).Create(s).Error)
}

func (r *repository) GetByID(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return &s, nil
}

func (r *repository) ListByGroup(ctx context.Context, groupID string) ([]*Session, error) {
	var rows []*Session
	err := r.db.WithContext(ctx).
		Where("group_id = ? OR id = ?", groupID, groupID).
		Order("started_at ASC, created_at ASC, id ASC").
		Find(&rows).Error
	return rows, storageErr("list by group", err)
}

func (r *repository) ListByExitToken(ctx context.Context, token string) ([]*Session, error) {
	var rows []*Session
	err := r.db.WithContext(ctx).
		Where("exit_token = ?", token).
		Order("started_at ASC, created_at ASC, id ASC").
		Find(&rows).Error
	return rows, storageErr("list by token", err)
}

func (r *repository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]*Session, error) {
	var rows []*Session
	q := r.db.WithContext(ctx).
		Where("status = ? AND ended_at IS NULL AND ends_at < ?", StatusActive, cutoff).
		Order("ends_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, storageErr("list overdue", err)
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]*Session, error) {
	groups := r.db.Model(&Session{}).
		Select("COALESCE(group_id, id)").
		Group("COALESCE(group_id, id)")
	if filter.ActiveGroupsOnly {
		groups = groups.Having("SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) > 0", StatusActive)
	}
	if filter.GroupLimit > 0 {
		groups = groups.Order("MIN(created_at) DESC").Limit(filter.GroupLimit)
	}

	var rows []*Session
	err := r.db.WithContext(ctx).
		Where("COALESCE(group_id, id) IN (?)", groups).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, storageErr("list", err)
}

func (r *repository) HasSuccessor(ctx context.Context, groupID string, from time.Time, excludeID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Session{}).
		Where("group_id = ? AND id <> ? AND started_at >= ?", groupID, excludeID, from).
		Count(&n).Error
	if err != nil {
		return false, storageErr("successor check", err)
	}
	return n > 0, nil
}

func (r *repository) MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(map[string]interface{}{
			"status":   StatusEnded,
			"ended_at": endedAt,
		})
	if res.Error != nil {
		return false, storageErr("close", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AssignGroup(ctx context.Context, id, groupID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND group_id IS NULL", id).
		Update("group_id", groupID)
	if res.Error != nil {
		return false, storageErr("assign group", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AssignExitToken(ctx context.Context, id string, groupID *string, token string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&Session{}).Where("exit_token IS NULL")
	if groupID != nil && *groupID != "" {
		q = q.Where("group_id = ? OR id = ?", *groupID, id)
	} else {
		q = q.Where("id = ?", id)
	}
	res := q.Update("exit_token", token)
	if res.Error != nil {
		return 0, storageErr("assign exit token", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Session{})
	if res.Error != nil {
		return false, storageErr("delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx})
	})
}
