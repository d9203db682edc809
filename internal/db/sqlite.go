package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dio-meetings/backend/internal/auth"
	"github.com/dio-meetings/backend/internal/db/models"
)

type Database struct {
	db *sql.DB
}

func NewSQLite(path string) (*Database, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	d := &Database{db: sqlDB}
	if err := d.migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'viewer',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		original_filename TEXT NOT NULL,
		title TEXT,
		participants TEXT,
		media_type TEXT NOT NULL,
		s3_key TEXT UNIQUE NOT NULL,
		format TEXT NOT NULL,
		size_mb REAL NOT NULL,
		duration REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		meeting_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		started_at DATETIME,
		completed_at DATETIME,
		FOREIGN KEY (meeting_id) REFERENCES meetings(id)
	);

	CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		meeting_id TEXT NOT NULL,
		full_text TEXT NOT NULL,
		words_count INTEGER NOT NULL,
		FOREIGN KEY (meeting_id) REFERENCES meetings(id)
	);

	CREATE TABLE IF NOT EXISTS minutes (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		meeting_id TEXT NOT NULL,
		title TEXT NOT NULL,
		md_text TEXT NOT NULL,
		FOREIGN KEY (meeting_id) REFERENCES meetings(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_meeting ON tasks(meeting_id);
	CREATE INDEX IF NOT EXISTS idx_transcripts_meeting ON transcripts(meeting_id);
	CREATE INDEX IF NOT EXISTS idx_minutes_meeting ON minutes(meeting_id);
	`
	_, err := d.db.Exec(schema)
	return err
}

func (d *Database) EnsureAdmin(username, password string) error {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'admin'").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		"INSERT INTO users (username, password, role) VALUES (?, ?, 'admin')",
		username, hash,
	)
	return err
}

func (d *Database) GetUserByUsername(username string) (*models.User, error) {
	u := &models.User{}
	err := d.db.QueryRow(
		"SELECT id, username, password, role, created_at, updated_at FROM users WHERE username = ?",
		username,
	).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Database) GetUserByID(id int64) (*models.User, error) {
	u := &models.User{}
	err := d.db.QueryRow(
		"SELECT id, username, password, role, created_at, updated_at FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// --- Meetings ---

func (d *Database) CreateMeeting(m *models.Meeting) error {
	_, err := d.db.Exec(`
		INSERT INTO meetings (id, created_at, original_filename, title, participants, media_type, s3_key, format, size_mb, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CreatedAt, m.OriginalFilename, nullable(m.Title), nullable(m.Participants),
		m.MediaType, m.S3Key, m.Format, m.SizeMB, m.Duration,
	)
	return err
}

func (d *Database) GetMeeting(id string) (*models.Meeting, error) {
	m := &models.Meeting{}
	var title, participants sql.NullString
	err := d.db.QueryRow(`
		SELECT id, created_at, original_filename, title, participants, media_type, s3_key, format, size_mb, duration
		FROM meetings WHERE id = ?`, id,
	).Scan(&m.ID, &m.CreatedAt, &m.OriginalFilename, &title, &participants,
		&m.MediaType, &m.S3Key, &m.Format, &m.SizeMB, &m.Duration)
	if err != nil {
		return nil, err
	}
	m.Title = title.String
	m.Participants = participants.String
	return m, nil
}

// UpdateMeetingInfo sets title and/or participants. Empty values are ignored;
// the pipeline-owned fields are never touched here.
func (d *Database) UpdateMeetingInfo(id, title, participants string) error {
	if title != "" {
		if _, err := d.db.Exec("UPDATE meetings SET title = ? WHERE id = ?", title, id); err != nil {
			return err
		}
	}
	if participants != "" {
		if _, err := d.db.Exec("UPDATE meetings SET participants = ? WHERE id = ?", participants, id); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) DeleteMeeting(id string) error {
	_, err := d.db.Exec("DELETE FROM meetings WHERE id = ?", id)
	return err
}

// --- Tasks ---

func (d *Database) CreateTask(t *models.Task) error {
	_, err := d.db.Exec(`
		INSERT INTO tasks (id, created_at, meeting_id, status)
		VALUES (?, ?, ?, ?)`,
		t.ID, t.CreatedAt, t.MeetingID, t.Status,
	)
	return err
}

func (d *Database) GetTask(id string) (*models.Task, error) {
	t := &models.Task{}
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := d.db.QueryRow(`
		SELECT id, created_at, meeting_id, status, error_message, started_at, completed_at
		FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.CreatedAt, &t.MeetingID, &t.Status, &errMsg, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return t, nil
}

// UpdateTaskStatus advances a task to the given status. Terminal tasks are
// never overwritten; the update is a no-op returning an error in that case.
func (d *Database) UpdateTaskStatus(id string, status models.TaskStatus) error {
	res, err := d.db.Exec(`
		UPDATE tasks SET status = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		status, id, models.StatusComplete, models.StatusFailed,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s not found or already terminal", id)
	}
	return nil
}

func (d *Database) MarkTaskStarted(id string) error {
	_, err := d.db.Exec("UPDATE tasks SET started_at = ? WHERE id = ?", time.Now(), id)
	return err
}

func (d *Database) CompleteTask(id string) error {
	_, err := d.db.Exec(`
		UPDATE tasks SET status = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		models.StatusComplete, time.Now(), id, models.StatusComplete, models.StatusFailed,
	)
	return err
}

func (d *Database) FailTask(id, errMsg string) error {
	_, err := d.db.Exec(`
		UPDATE tasks SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		models.StatusFailed, errMsg, time.Now(), id, models.StatusComplete, models.StatusFailed,
	)
	return err
}

// ListTasksByStatus returns task IDs in the given status, oldest first.
func (d *Database) ListTasksByStatus(status models.TaskStatus) ([]string, error) {
	rows, err := d.db.Query("SELECT id FROM tasks WHERE status = ? ORDER BY created_at ASC", status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResetInFlightTasks re-marks non-terminal tasks as pending. Called on startup
// after a restart interrupted their workers.
func (d *Database) ResetInFlightTasks() error {
	_, err := d.db.Exec(`
		UPDATE tasks SET status = ?
		WHERE status NOT IN (?, ?, ?)`,
		models.StatusPending, models.StatusPending, models.StatusComplete, models.StatusFailed,
	)
	return err
}

// --- Transcripts ---

func (d *Database) CreateTranscript(t *models.Transcript) error {
	_, err := d.db.Exec(`
		INSERT INTO transcripts (id, created_at, meeting_id, full_text, words_count)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.CreatedAt, t.MeetingID, t.FullText, t.WordsCount,
	)
	return err
}

func (d *Database) GetTranscriptByMeeting(meetingID string) (*models.Transcript, error) {
	t := &models.Transcript{}
	err := d.db.QueryRow(`
		SELECT id, created_at, meeting_id, full_text, words_count
		FROM transcripts WHERE meeting_id = ?
		ORDER BY created_at ASC LIMIT 1`, meetingID,
	).Scan(&t.ID, &t.CreatedAt, &t.MeetingID, &t.FullText, &t.WordsCount)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// --- Minutes ---

func (d *Database) CreateMinutes(m *models.Minutes) error {
	_, err := d.db.Exec(`
		INSERT INTO minutes (id, created_at, meeting_id, title, md_text)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.CreatedAt, m.MeetingID, m.Title, m.MDText,
	)
	return err
}

// GetMinutesByMeeting returns the earliest minutes for a meeting. Later
// re-generations do not supersede the first record.
func (d *Database) GetMinutesByMeeting(meetingID string) (*models.Minutes, error) {
	m := &models.Minutes{}
	err := d.db.QueryRow(`
		SELECT id, created_at, meeting_id, title, md_text
		FROM minutes WHERE meeting_id = ?
		ORDER BY created_at ASC LIMIT 1`, meetingID,
	).Scan(&m.ID, &m.CreatedAt, &m.MeetingID, &m.Title, &m.MDText)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
