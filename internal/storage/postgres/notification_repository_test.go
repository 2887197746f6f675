package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	appErrors "courier-sync/pkg/errors"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return &DB{DB: gdb}, mock
}

func countRows(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func TestMarkRead_MarksUnreadAndReturnsRemaining(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)
	userID, notifID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "notifications" SET .+ AND is_read = false`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "notifications"`).
		WillReturnRows(countRows(2))

	unread, err := repo.MarkRead(context.Background(), userID, notifID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_AlreadyReadKeepsReadAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)
	userID, notifID := uuid.New(), uuid.New()

	// The update filters on is_read = false, so a read notification
	// matches zero rows and its read_at stays untouched.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "notifications" SET .+ AND is_read = false`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "notifications"`).
		WillReturnRows(countRows(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "notifications"`).
		WillReturnRows(countRows(0))

	unread, err := repo.MarkRead(context.Background(), userID, notifID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_UnknownNotification(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "notifications" SET .+ AND is_read = false`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "notifications"`).
		WillReturnRows(countRows(0))

	_, err := repo.MarkRead(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, appErrors.ErrNotificationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneOlderThan_DeletesByCutoff(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "notifications" WHERE created_at <`).
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	err := repo.PruneOlderThan(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
