package session

import (
	"context"
	"errors"
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

func TestRepositoryMarkEndedIsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)
	endedAt := at(11, 0)

	mock.ExpectExec(`UPDATE "sessions" SET .*"ended_at"=.*"status"=.* WHERE id = \$\d+ AND ended_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "sessions" SET .* WHERE id = \$\d+ AND ended_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.MarkEnded(context.Background(), "s-1", endedAt)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkEnded(context.Background(), "s-1", endedAt)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMarkEndedWrapsStoreFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectExec(`UPDATE "sessions" SET`).WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.MarkEnded(context.Background(), "s-1", at(11, 0))

	var storage *StorageError
	require.ErrorAs(t, err, &storage)
	assert.Equal(t, "close", storage.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryAssignExitTokenCoversGroup(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)
	group := "g-1"

	mock.ExpectExec(`UPDATE "sessions" SET "exit_token"=.* WHERE exit_token IS NULL AND \(group_id = \$\d+ OR id = \$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`UPDATE "sessions" SET "exit_token"=.* WHERE exit_token IS NULL AND id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.AssignExitToken(context.Background(), "s-1", &group, "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.AssignExitToken(context.Background(), "s-2", nil, "tok2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryAssignGroupOnlyWhenMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectExec(`UPDATE "sessions" SET "group_id"=.* WHERE id = \$\d+ AND group_id IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.AssignGroup(context.Background(), "s-1", "g-1")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sessions" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "s-404")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListOverdue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)
	cutoff := at(11, 5)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "sessions" WHERE status = $1 AND ended_at IS NULL AND ends_at < $2 ORDER BY ends_at ASC LIMIT $3`)).
		WithArgs(StatusActive, cutoff, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "game_id", "players", "status", "started_at", "ends_at"}).
			AddRow("s-1", "g-1", "game-1", 2, "active", at(10, 0), at(11, 0)))

	rows, err := repo.ListOverdue(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "g-1", *rows[0].GroupID)
	assert.Equal(t, at(11, 0), rows[0].EndsAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListLimitsByGroup(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "sessions" WHERE COALESCE\(group_id, id\) IN \(SELECT COALESCE\(group_id, id\) FROM "sessions" GROUP BY COALESCE\(group_id, id\) HAVING SUM\(CASE WHEN status = \$1 THEN 1 ELSE 0 END\) > 0 ORDER BY MIN\(created_at\) DESC LIMIT .+\) ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "status", "created_at"}).
			AddRow("s-2", "g-1", "active", at(11, 0)).
			AddRow("s-1", "g-1", "ended", at(10, 0)))

	rows, err := repo.List(context.Background(), ListFilter{ActiveGroupsOnly: true, GroupLimit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "s-2", rows[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryHasSuccessor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "sessions" WHERE group_id = $1 AND id <> $2 AND started_at >= $3`)).
		WithArgs("g-1", "s-1", at(11, 0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := repo.HasSuccessor(context.Background(), "g-1", at(11, 0), "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryTransactionRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "sessions" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("insert failed")
	err := repo.Transaction(context.Background(), func(tx Repository) error {
		if _, err := tx.MarkEnded(context.Background(), "s-1", time.Now()); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
