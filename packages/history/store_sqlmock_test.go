package history

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db), mock
}

func TestSaveRun_RollsBackWhenCheckInsertFails(t *testing.T) {
	store, mock := setupMockStore(t)
	results, summary := sampleRun(true)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(1, 1))
	prep := mock.ExpectPrepare("INSERT INTO checks")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	run, err := store.SaveRun(context.Background(), "http://localhost:3001", summary, results)
	require.Error(t, err)
	assert.Nil(t, run)
	assert.Contains(t, err.Error(), "failed to insert check cases")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun_BeginFails(t *testing.T) {
	store, mock := setupMockStore(t)
	results, summary := sampleRun(true)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, err := store.SaveRun(context.Background(), "http://localhost:3001", summary, results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastRun_NoRowsAndQueryErrors(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE base_url = \\? ORDER BY started_at DESC LIMIT 1").
		WithArgs("http://localhost:3001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "base_url", "started_at", "duration_ms", "total", "passed", "failed", "percent", "verdict"}))
	_, err := store.LastRun(context.Background(), "http://localhost:3001")
	assert.ErrorIs(t, err, ErrNoRuns)

	mock.ExpectQuery("SELECT (.+) FROM runs ORDER BY started_at DESC LIMIT 1").
		WillReturnError(errors.New("no such table: runs"))
	_, err = store.LastRun(context.Background(), "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRuns)
	assert.Contains(t, err.Error(), "failed to load last run")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastRun_RejectsCorruptTimestamp(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM runs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "base_url", "started_at", "duration_ms", "total", "passed", "failed", "percent", "verdict"}).
			AddRow("r1", "http://localhost:3001", "yesterday", 120, 8, 8, 0, 100.0, "working well"))

	_, err := store.LastRun(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid started_at")
}
