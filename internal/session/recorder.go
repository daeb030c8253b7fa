package session

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Record is one playback session as stored in the database.
type Record struct {
	ID          int64
	StartedAt   time.Time
	StoppedAt   *time.Time
	DeviceName  string
	SampleRate  uint32
	Channels    uint32
	TrackCount  int
	CapturePath string
	Files       []string
}

// Recorder writes playback session history. All methods are best-effort
// from the caller's perspective: history must never block or fail playback,
// so callers log returned errors and move on.
type Recorder struct {
	db *sql.DB
}

// NewRecorder creates a recorder over an open session database.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// Begin inserts a new session row and returns its id.
func (r *Recorder) Begin(deviceName string, sampleRate, channels uint32, files []string) (int64, error) {
	res, err := r.db.Exec(
		`INSERT INTO playback_sessions (started_at, device_name, sample_rate, channels, track_count)
		 VALUES (?, ?, ?, ?, ?)`,
		time.Now().Unix(), deviceName, sampleRate, channels, len(files),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}

	for _, file := range files {
		if _, err := r.db.Exec(
			`INSERT OR IGNORE INTO session_tracks (session_id, file_path) VALUES (?, ?)`,
			id, file,
		); err != nil {
			return 0, fmt.Errorf("failed to insert session track: %w", err)
		}
	}

	slog.Debug("session recorded", "session_id", id, "tracks", len(files))
	return id, nil
}

// End marks a session stopped, optionally attaching the capture file path.
func (r *Recorder) End(id int64, capturePath string) error {
	var capture any
	if capturePath != "" {
		capture = capturePath
	}

	_, err := r.db.Exec(
		`UPDATE playback_sessions SET stopped_at = ?, capture_path = ? WHERE id = ?`,
		time.Now().Unix(), capture, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}

	slog.Debug("session finalized", "session_id", id, "capture", capturePath)
	return nil
}

// Recent returns the most recent sessions, newest first.
func (r *Recorder) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, stopped_at, device_name, sample_rate, channels, track_count,
		        COALESCE(capture_path, '')
		 FROM playback_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var started int64
		var stopped sql.NullInt64
		if err := rows.Scan(&rec.ID, &started, &stopped, &rec.DeviceName,
			&rec.SampleRate, &rec.Channels, &rec.TrackCount, &rec.CapturePath); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.StartedAt = time.Unix(started, 0)
		if stopped.Valid {
			t := time.Unix(stopped.Int64, 0)
			rec.StoppedAt = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	for i := range records {
		files, err := r.sessionFiles(records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Files = files
	}

	return records, nil
}

func (r *Recorder) sessionFiles(id int64) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT file_path FROM session_tracks WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query session tracks: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan session track: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
