package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS habits (
	account TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	streak INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	last_completed_date TEXT,
	schedule TEXT,
	updated_at TEXT,
	device_id TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (account, id)
);

CREATE TABLE IF NOT EXISTS habit_logs (
	account TEXT NOT NULL,
	id TEXT NOT NULL,
	habit_id TEXT NOT NULL,
	date TEXT NOT NULL,
	completed INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	source TEXT NOT NULL,
	updated_at TEXT,
	device_id TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (account, habit_id, date)
);

CREATE TABLE IF NOT EXISTS settings (
	account TEXT PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_meta (
	account TEXT PRIMARY KEY,
	pending_push INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_synced_at TEXT,
	last_finalized_date TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS base_snapshots (
	account TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
`

// SQLiteStore persists account-scoped data in a single SQLite database.
type SQLiteStore struct {
	path    string
	account string
	db      *sql.DB
}

func NewSQLiteStore(path, account string) *SQLiteStore {
	if account == "" {
		account = constants.DefaultAccount
	}
	return &SQLiteStore{path: path, account: account}
}

func (s *SQLiteStore) Init() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	s.db = db

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("unable to create schema: %w", err)
	}

	// Seed default settings for the account on first init.
	if _, err := s.GetSettings(); errors.Is(err, sql.ErrNoRows) {
		if err := s.SaveSettings(models.DefaultSettings()); err != nil {
			return fmt.Errorf("unable to save default settings: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) Load() error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run '%s init' first", constants.AppName)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	s.db = db
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) GetSettings() (models.Settings, error) {
	var data string
	row := s.db.QueryRow(`SELECT data FROM settings WHERE account = ?`, s.account)
	if err := row.Scan(&data); err != nil {
		return models.Settings{}, err
	}

	var settings models.Settings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return models.Settings{}, fmt.Errorf("unable to parse settings: %w", err)
	}
	return settings, nil
}

func (s *SQLiteStore) SaveSettings(settings models.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("unable to serialize settings: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO settings (account, data) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET data = excluded.data`,
		s.account, string(data))
	return err
}

func (s *SQLiteStore) AddHabit(h models.Habit) error {
	if _, err := s.GetHabit(h.ID); err == nil {
		return fmt.Errorf("habit %s already exists", h.ID)
	}
	return s.upsertHabit(h)
}

func (s *SQLiteStore) UpdateHabit(h models.Habit) error {
	if _, err := s.GetHabit(h.ID); err != nil {
		return err
	}
	return s.upsertHabit(h)
}

func (s *SQLiteStore) upsertHabit(h models.Habit) error {
	var schedule, lastCompleted, updatedAt, deviceID sql.NullString
	if h.Schedule != nil {
		data, err := json.Marshal(h.Schedule)
		if err != nil {
			return fmt.Errorf("unable to serialize schedule: %w", err)
		}
		schedule = sql.NullString{String: string(data), Valid: true}
	}
	if h.LastCompletedDate != nil {
		lastCompleted = sql.NullString{String: h.LastCompletedDate.Format(time.RFC3339), Valid: true}
	}
	if h.UpdatedAt != nil {
		updatedAt = sql.NullString{String: h.UpdatedAt.Format(time.RFC3339), Valid: true}
	}
	if h.DeviceID != nil {
		deviceID = sql.NullString{String: *h.DeviceID, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO habits (account, id, name, type, streak, created_at, last_completed_date, schedule, updated_at, device_id, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			streak = excluded.streak,
			created_at = excluded.created_at,
			last_completed_date = excluded.last_completed_date,
			schedule = excluded.schedule,
			updated_at = excluded.updated_at,
			device_id = excluded.device_id,
			version = excluded.version`,
		s.account, h.ID, h.Name, string(h.Type), h.Streak, h.CreatedAt.Format(time.RFC3339),
		lastCompleted, schedule, updatedAt, deviceID, h.Version)
	return err
}

func (s *SQLiteStore) GetHabit(id string) (models.Habit, error) {
	row := s.db.QueryRow(`
		SELECT id, name, type, streak, created_at, last_completed_date, schedule, updated_at, device_id, version
		FROM habits WHERE account = ? AND id = ?`, s.account, id)

	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Habit{}, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return h, err
}

func (s *SQLiteStore) GetAllHabits() ([]models.Habit, error) {
	rows, err := s.db.Query(`
		SELECT id, name, type, streak, created_at, last_completed_date, schedule, updated_at, device_id, version
		FROM habits WHERE account = ? ORDER BY created_at, id`, s.account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	habits := []models.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

func (s *SQLiteStore) DeleteHabit(id string) error {
	result, err := s.db.Exec(`DELETE FROM habits WHERE account = ? AND id = ?`, s.account, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}

	_, err = s.db.Exec(`DELETE FROM habit_logs WHERE account = ? AND habit_id = ?`, s.account, id)
	return err
}

func (s *SQLiteStore) ReplaceHabits(habits []models.Habit) error {
	if _, err := s.db.Exec(`DELETE FROM habits WHERE account = ?`, s.account); err != nil {
		return err
	}
	for _, h := range habits {
		if err := s.upsertHabit(h); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertLog(log models.HabitLog) error {
	var updatedAt, deviceID sql.NullString
	if log.UpdatedAt != nil {
		updatedAt = sql.NullString{String: log.UpdatedAt.Format(time.RFC3339), Valid: true}
	}
	if log.DeviceID != nil {
		deviceID = sql.NullString{String: *log.DeviceID, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO habit_logs (account, id, habit_id, date, completed, timestamp, source, updated_at, device_id, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account, habit_id, date) DO UPDATE SET
			id = excluded.id,
			completed = excluded.completed,
			timestamp = excluded.timestamp,
			source = excluded.source,
			updated_at = excluded.updated_at,
			device_id = excluded.device_id,
			version = excluded.version`,
		s.account, log.ID, log.HabitID, log.Date, boolToInt(log.Completed),
		log.Timestamp.Format(time.RFC3339), string(log.Source), updatedAt, deviceID, log.Version)
	return err
}

func (s *SQLiteStore) GetLog(habitID, date string) (models.HabitLog, error) {
	row := s.db.QueryRow(`
		SELECT id, habit_id, date, completed, timestamp, source, updated_at, device_id, version
		FROM habit_logs WHERE account = ? AND habit_id = ? AND date = ?`,
		s.account, habitID, date)

	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HabitLog{}, fmt.Errorf("log %s %s: %w", habitID, date, ErrNotFound)
	}
	return log, err
}

func (s *SQLiteStore) GetLogsForHabit(habitID string) ([]models.HabitLog, error) {
	return s.queryLogs(`
		SELECT id, habit_id, date, completed, timestamp, source, updated_at, device_id, version
		FROM habit_logs WHERE account = ? AND habit_id = ? ORDER BY date, id`,
		s.account, habitID)
}

func (s *SQLiteStore) GetAllLogs() ([]models.HabitLog, error) {
	return s.queryLogs(`
		SELECT id, habit_id, date, completed, timestamp, source, updated_at, device_id, version
		FROM habit_logs WHERE account = ? ORDER BY date, habit_id, id`,
		s.account)
}

func (s *SQLiteStore) queryLogs(query string, args ...any) ([]models.HabitLog, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.HabitLog{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) DeleteLog(habitID, date string) error {
	result, err := s.db.Exec(`DELETE FROM habit_logs WHERE account = ? AND habit_id = ? AND date = ?`,
		s.account, habitID, date)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("log %s %s: %w", habitID, date, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ReplaceLogs(logs []models.HabitLog) error {
	if _, err := s.db.Exec(`DELETE FROM habit_logs WHERE account = ?`, s.account); err != nil {
		return err
	}
	for _, log := range logs {
		if err := s.UpsertLog(log); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetSyncMeta() (models.SyncMeta, error) {
	row := s.db.QueryRow(`
		SELECT pending_push, retry_count, last_synced_at, last_finalized_date
		FROM sync_meta WHERE account = ?`, s.account)

	var meta models.SyncMeta
	var pending int
	var lastSynced sql.NullString
	err := row.Scan(&pending, &meta.RetryCount, &lastSynced, &meta.LastFinalizedDate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncMeta{}, nil
	}
	if err != nil {
		return models.SyncMeta{}, err
	}

	meta.PendingPush = pending != 0
	if lastSynced.Valid {
		t, err := time.Parse(time.RFC3339, lastSynced.String)
		if err != nil {
			return models.SyncMeta{}, fmt.Errorf("unable to parse last_synced_at: %w", err)
		}
		meta.LastSyncedAt = &t
	}
	return meta, nil
}

func (s *SQLiteStore) SaveSyncMeta(meta models.SyncMeta) error {
	var lastSynced sql.NullString
	if meta.LastSyncedAt != nil {
		lastSynced = sql.NullString{String: meta.LastSyncedAt.Format(time.RFC3339), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO sync_meta (account, pending_push, retry_count, last_synced_at, last_finalized_date)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			pending_push = excluded.pending_push,
			retry_count = excluded.retry_count,
			last_synced_at = excluded.last_synced_at,
			last_finalized_date = excluded.last_finalized_date`,
		s.account, boolToInt(meta.PendingPush), meta.RetryCount, lastSynced, meta.LastFinalizedDate)
	return err
}

func (s *SQLiteStore) GetBaseSnapshot() ([]byte, error) {
	var data []byte
	row := s.db.QueryRow(`SELECT data FROM base_snapshots WHERE account = ?`, s.account)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *SQLiteStore) SaveBaseSnapshot(data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO base_snapshots (account, data) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET data = excluded.data`,
		s.account, data)
	return err
}

func (s *SQLiteStore) GetConfigPath() string { return s.path }

func (s *SQLiteStore) Account() string { return s.account }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHabit(row rowScanner) (models.Habit, error) {
	var h models.Habit
	var habitType, createdAt string
	var lastCompleted, schedule, updatedAt, deviceID sql.NullString

	err := row.Scan(&h.ID, &h.Name, &habitType, &h.Streak, &createdAt,
		&lastCompleted, &schedule, &updatedAt, &deviceID, &h.Version)
	if err != nil {
		return models.Habit{}, err
	}

	h.Type = constants.HabitType(habitType)
	h.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return models.Habit{}, fmt.Errorf("unable to parse created_at for habit %s: %w", h.ID, err)
	}
	if lastCompleted.Valid {
		t, err := time.Parse(time.RFC3339, lastCompleted.String)
		if err != nil {
			return models.Habit{}, fmt.Errorf("unable to parse last_completed_date for habit %s: %w", h.ID, err)
		}
		h.LastCompletedDate = &t
	}
	if schedule.Valid {
		var sched models.Schedule
		if err := json.Unmarshal([]byte(schedule.String), &sched); err != nil {
			return models.Habit{}, fmt.Errorf("unable to parse schedule for habit %s: %w", h.ID, err)
		}
		h.Schedule = &sched
	}
	if updatedAt.Valid {
		t, err := time.Parse(time.RFC3339, updatedAt.String)
		if err != nil {
			return models.Habit{}, fmt.Errorf("unable to parse updated_at for habit %s: %w", h.ID, err)
		}
		h.UpdatedAt = &t
	}
	if deviceID.Valid {
		h.DeviceID = &deviceID.String
	}

	return h, nil
}

func scanLog(row rowScanner) (models.HabitLog, error) {
	var log models.HabitLog
	var completed int
	var timestamp, source string
	var updatedAt, deviceID sql.NullString

	err := row.Scan(&log.ID, &log.HabitID, &log.Date, &completed, &timestamp,
		&source, &updatedAt, &deviceID, &log.Version)
	if err != nil {
		return models.HabitLog{}, err
	}

	log.Completed = completed != 0
	log.Source = constants.LogSource(source)
	log.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return models.HabitLog{}, fmt.Errorf("unable to parse timestamp for log %s: %w", log.ID, err)
	}
	if updatedAt.Valid {
		t, err := time.Parse(time.RFC3339, updatedAt.String)
		if err != nil {
			return models.HabitLog{}, fmt.Errorf("unable to parse updated_at for log %s: %w", log.ID, err)
		}
		log.UpdatedAt = &t
	}
	if deviceID.Valid {
		log.DeviceID = &deviceID.String
	}

	return log, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
