package quota

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	t.Run("insert fills id and timestamp", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO quota_records`).
			WithArgs(sqlmock.AnyArg(), "certificate-generator", "203.0.113.5", "", "tpl-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		store := NewPostgresStore(db)
		record := &Record{Tool: "certificate-generator", IP: "203.0.113.5", TemplateRef: "tpl-1"}
		err = store.Insert(ctx, record)
		require.NoError(t, err)
		assert.NotEmpty(t, record.ID)
		assert.False(t, record.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ip partition excludes email records", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		since := time.Now().Add(-DefaultWindow)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM quota_records WHERE tool = \$1 AND ip = \$2 AND email = ''`).
			WithArgs("certificate-generator", "203.0.113.5", since).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		store := NewPostgresStore(db)
		count, err := store.CountInWindow(ctx, "certificate-generator", Identity{IP: "203.0.113.5"}, since)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("email identity counts by email only", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		since := time.Now().Add(-DefaultWindow)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM quota_records WHERE tool = \$1 AND email = \$2`).
			WithArgs("certificate-generator", "a@example.com", since).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		store := NewPostgresStore(db)
		count, err := store.CountInWindow(ctx, "certificate-generator",
			Identity{IP: "203.0.113.5", Email: "a@example.com"}, since)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete older than", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		cutoff := time.Now().Add(-25 * time.Hour)
		mock.ExpectExec(`DELETE FROM quota_records WHERE created_at < \$1`).
			WithArgs(cutoff).
			WillReturnResult(sqlmock.NewResult(0, 42))

		store := NewPostgresStore(db)
		deleted, err := store.DeleteOlderThan(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(42), deleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
