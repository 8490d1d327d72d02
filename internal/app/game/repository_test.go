package game

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "games" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "4c1b4c33-0f7e-4a8e-9a54-4d44b3a1b7a0")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListActiveOnly(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "games" WHERE active = $1 ORDER BY name ASC`)).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "duration_minutes", "max_players", "active", "created_at", "updated_at"}).
			AddRow("g1", "Billiards", 60, 4, true, now, now))

	games, err := repo.List(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Billiards", games[0].Name)
	assert.Equal(t, time.Hour, games[0].Duration())
	assert.NoError(t, mock.ExpectationsWereMet())
}
