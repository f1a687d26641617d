package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create_credentials", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS credentials")
	assert.Equal(t, 2, migrations[1].Version)
	assert.Contains(t, migrations[1].SQL, "ADD COLUMN pinned")
}

func TestLoadMigrations_RejectsBadNames(t *testing.T) {
	fsys := fstest.MapFS{
		"m/abc_bad.sql": {Data: []byte("SELECT 1")},
	}
	_, err := loadMigrations(fsys, "m")
	assert.Error(t, err)

	fsys = fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("SELECT 1")},
		"m/1_b.sql":    {Data: []byte("SELECT 2")},
	}
	_, err = loadMigrations(fsys, "m")
	assert.ErrorContains(t, err, "duplicate migration version 1")
}

func TestMigrate_AppliesOnlyPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{
		{Version: 1, Name: "create_credentials", SQL: "CREATE TABLE credentials (id INT)"},
		{Version: 2, Name: "add_credentials_pinned", SQL: "ALTER TABLE credentials ADD COLUMN pinned BOOLEAN"},
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(`ALTER TABLE credentials ADD COLUMN pinned`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(2, "add_credentials_pinned").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n, err := apply(context.Background(), db, migrations, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{{Version: 1, Name: "broken", SQL: "CREATE TABLE broken"}}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE broken`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	n, err := apply(context.Background(), db, migrations, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1 (broken) failed")
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
