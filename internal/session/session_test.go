package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase(t *testing.T) {
	db, err := NewDatabase(":memory:")
	require.NoError(t, err, "should create in-memory database")
	defer db.Close()

	var count int
	err = db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('playback_sessions', 'session_tracks')`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "schema tables should exist")
}

func TestNewDatabaseCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "sessions.db")

	db, err := NewDatabase(dbPath)
	require.NoError(t, err, "should create parent directory for database file")
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestRecorderBeginAndEnd(t *testing.T) {
	db, err := NewDatabase(":memory:")
	require.NoError(t, err)
	defer db.Close()

	rec := NewRecorder(db)

	id, err := rec.Begin("Scarlett 18i20", 48000, 2, []string{"drums.wav", "bass.wav"})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	sessions, err := rec.Recent(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	got := sessions[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Scarlett 18i20", got.DeviceName)
	assert.Equal(t, uint32(48000), got.SampleRate)
	assert.Equal(t, uint32(2), got.Channels)
	assert.Equal(t, 2, got.TrackCount)
	assert.Equal(t, []string{"drums.wav", "bass.wav"}, got.Files)
	assert.Nil(t, got.StoppedAt, "session should still be open")
	assert.Empty(t, got.CapturePath)

	err = rec.End(id, "mix-2026-01-02-030405.wav")
	require.NoError(t, err)

	sessions, err = rec.Recent(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].StoppedAt, "ended session should have stop time")
	assert.Equal(t, "mix-2026-01-02-030405.wav", sessions[0].CapturePath)
}

func TestRecorderEndWithoutCapture(t *testing.T) {
	db, err := NewDatabase(":memory:")
	require.NoError(t, err)
	defer db.Close()

	rec := NewRecorder(db)

	id, err := rec.Begin("default", 44100, 2, []string{"take.wav"})
	require.NoError(t, err)

	err = rec.End(id, "")
	require.NoError(t, err)

	sessions, err := rec.Recent(1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Empty(t, sessions[0].CapturePath)
	assert.NotNil(t, sessions[0].StoppedAt)
}

func TestRecorderRecentOrderAndLimit(t *testing.T) {
	db, err := NewDatabase(":memory:")
	require.NoError(t, err)
	defer db.Close()

	rec := NewRecorder(db)

	// Insert directly to control started_at ordering.
	for i, started := range []int64{100, 200, 300} {
		_, err := db.Exec(
			`INSERT INTO playback_sessions (started_at, device_name, sample_rate, channels, track_count)
			 VALUES (?, ?, 48000, 2, 0)`,
			started, []string{"a", "b", "c"}[i],
		)
		require.NoError(t, err)
	}

	sessions, err := rec.Recent(2)
	require.NoError(t, err)
	require.Len(t, sessions, 2, "limit should cap result count")
	assert.Equal(t, "c", sessions[0].DeviceName, "newest session first")
	assert.Equal(t, "b", sessions[1].DeviceName)
}

func TestRecorderBeginDuplicateFiles(t *testing.T) {
	db, err := NewDatabase(":memory:")
	require.NoError(t, err)
	defer db.Close()

	rec := NewRecorder(db)

	id, err := rec.Begin("default", 48000, 2, []string{"loop.wav", "loop.wav"})
	require.NoError(t, err, "duplicate file paths should not fail the insert")

	sessions, err := rec.Recent(1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, []string{"loop.wav"}, sessions[0].Files, "duplicates collapse to one row")
}
