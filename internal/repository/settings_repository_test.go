package repository

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM system_settings WHERE key = $1`)).
		WithArgs("drive_endpoint").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("https://drive.local"))

	repo := NewSettingsRepository(db)
	value, err := repo.Get("drive_endpoint")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.local", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsGetMissingKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM system_settings WHERE key = $1`)).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	repo := NewSettingsRepository(db)
	value, err := repo.Get("nope")
	require.NoError(t, err)
	assert.Equal(t, "", value)
}

func TestSettingsSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO system_settings`)).
		WithArgs("tmdb_api_key", "abc123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSettingsRepository(db)
	require.NoError(t, repo.Set("tmdb_api_key", "abc123"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsSetManyCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO system_settings`)).
		WithArgs("drive_last_refresh", "1700000000000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewSettingsRepository(db)
	require.NoError(t, repo.SetMany(map[string]string{
		"drive_last_refresh": "1700000000000",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsSetManyRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO system_settings`)).
		WithArgs("drive_resource_count", "42").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	repo := NewSettingsRepository(db)
	err = repo.SetMany(map[string]string{"drive_resource_count": "42"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drive_resource_count")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsGetAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM system_settings`)).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("drive_enabled", "true").
			AddRow("drive_endpoint", "https://drive.local"))

	repo := NewSettingsRepository(db)
	settings, err := repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"drive_enabled":  "true",
		"drive_endpoint": "https://drive.local",
	}, settings)
}

func TestSettingsDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM system_settings WHERE key = $1`)).
		WithArgs("refresh_schedule").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSettingsRepository(db)
	require.NoError(t, repo.Delete("refresh_schedule"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
