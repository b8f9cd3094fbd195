package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/julianstephens/habitloop/internal/constants"
	"github.com/julianstephens/habitloop/internal/models"
)

// accountData holds everything stored for a single account.
type accountData struct {
	Settings     models.Settings            `json:"settings"`
	Habits       map[string]models.Habit    `json:"habits"`
	Logs         map[string]models.HabitLog `json:"logs"` // keyed habitId::date
	SyncMeta     models.SyncMeta            `json:"syncMeta"`
	BaseSnapshot json.RawMessage            `json:"baseSnapshot,omitempty"`
}

func newAccountData() *accountData {
	return &accountData{
		Settings: models.DefaultSettings(),
		Habits:   make(map[string]models.Habit),
		Logs:     make(map[string]models.HabitLog),
	}
}

// Store is the on-disk shape of the JSON backend.
type Store struct {
	Version  string                  `json:"version"`
	Accounts map[string]*accountData `json:"accounts"`
}

// JSONStore persists all data as a single pretty-printed JSON file.
type JSONStore struct {
	path    string
	account string
	store   *Store
	loaded  bool
}

// NewJSONStore creates a JSON storage provider for the given account.
// An empty account falls back to the default local account.
func NewJSONStore(path, account string) *JSONStore {
	if account == "" {
		account = constants.DefaultAccount
	}
	return &JSONStore{path: path, account: account}
}

func (j *JSONStore) Init() error {
	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	if _, err := os.Stat(j.path); err == nil {
		if err := j.Load(); err != nil {
			return err
		}
		if _, ok := j.store.Accounts[j.account]; !ok {
			j.store.Accounts[j.account] = newAccountData()
			return j.save()
		}
		return nil
	}

	j.store = &Store{
		Version:  constants.BundleVersion,
		Accounts: map[string]*accountData{j.account: newAccountData()},
	}
	j.loaded = true
	return j.save()
}

func (j *JSONStore) Load() error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("storage not initialized, run '%s init' first", constants.AppName)
		}
		return fmt.Errorf("unable to read storage file: %w", err)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return fmt.Errorf("unable to parse storage file: %w", err)
	}
	if store.Accounts == nil {
		store.Accounts = make(map[string]*accountData)
	}
	for acct, d := range store.Accounts {
		if d == nil {
			store.Accounts[acct] = newAccountData()
			continue
		}
		if d.Habits == nil {
			d.Habits = make(map[string]models.Habit)
		}
		if d.Logs == nil {
			d.Logs = make(map[string]models.HabitLog)
		}
	}

	j.store = &store
	j.loaded = true
	return nil
}

func (j *JSONStore) Close() error { return nil }

func (j *JSONStore) save() error {
	data, err := json.MarshalIndent(j.store, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to serialize storage: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0600); err != nil {
		return fmt.Errorf("unable to write storage file: %w", err)
	}
	return nil
}

func (j *JSONStore) data() (*accountData, error) {
	if !j.loaded || j.store == nil {
		return nil, fmt.Errorf("storage not loaded")
	}
	d, ok := j.store.Accounts[j.account]
	if !ok {
		d = newAccountData()
		j.store.Accounts[j.account] = d
	}
	return d, nil
}

func logKey(habitID, date string) string {
	return habitID + "::" + date
}

func (j *JSONStore) GetSettings() (models.Settings, error) {
	d, err := j.data()
	if err != nil {
		return models.Settings{}, err
	}
	return d.Settings, nil
}

func (j *JSONStore) SaveSettings(s models.Settings) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	d.Settings = s
	return j.save()
}

func (j *JSONStore) AddHabit(h models.Habit) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	if _, exists := d.Habits[h.ID]; exists {
		return fmt.Errorf("habit %s already exists", h.ID)
	}
	d.Habits[h.ID] = h
	return j.save()
}

func (j *JSONStore) GetHabit(id string) (models.Habit, error) {
	d, err := j.data()
	if err != nil {
		return models.Habit{}, err
	}
	h, ok := d.Habits[id]
	if !ok {
		return models.Habit{}, fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	return h, nil
}

func (j *JSONStore) GetAllHabits() ([]models.Habit, error) {
	d, err := j.data()
	if err != nil {
		return nil, err
	}
	habits := make([]models.Habit, 0, len(d.Habits))
	for _, h := range d.Habits {
		habits = append(habits, h)
	}
	sort.Slice(habits, func(a, b int) bool {
		if !habits[a].CreatedAt.Equal(habits[b].CreatedAt) {
			return habits[a].CreatedAt.Before(habits[b].CreatedAt)
		}
		return habits[a].ID < habits[b].ID
	})
	return habits, nil
}

func (j *JSONStore) UpdateHabit(h models.Habit) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	if _, ok := d.Habits[h.ID]; !ok {
		return fmt.Errorf("habit %s: %w", h.ID, ErrNotFound)
	}
	d.Habits[h.ID] = h
	return j.save()
}

func (j *JSONStore) DeleteHabit(id string) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	if _, ok := d.Habits[id]; !ok {
		return fmt.Errorf("habit %s: %w", id, ErrNotFound)
	}
	delete(d.Habits, id)
	for key, log := range d.Logs {
		if log.HabitID == id {
			delete(d.Logs, key)
		}
	}
	return j.save()
}

func (j *JSONStore) ReplaceHabits(habits []models.Habit) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	d.Habits = make(map[string]models.Habit, len(habits))
	for _, h := range habits {
		d.Habits[h.ID] = h
	}
	return j.save()
}

func (j *JSONStore) UpsertLog(log models.HabitLog) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	key := logKey(log.HabitID, log.Date)
	d.Logs[key] = log
	return j.save()
}

func (j *JSONStore) GetLog(habitID, date string) (models.HabitLog, error) {
	d, err := j.data()
	if err != nil {
		return models.HabitLog{}, err
	}
	log, ok := d.Logs[logKey(habitID, date)]
	if !ok {
		return models.HabitLog{}, fmt.Errorf("log %s %s: %w", habitID, date, ErrNotFound)
	}
	return log, nil
}

func (j *JSONStore) GetLogsForHabit(habitID string) ([]models.HabitLog, error) {
	d, err := j.data()
	if err != nil {
		return nil, err
	}
	var logs []models.HabitLog
	for _, log := range d.Logs {
		if log.HabitID == habitID {
			logs = append(logs, log)
		}
	}
	sortLogs(logs)
	return logs, nil
}

func (j *JSONStore) GetAllLogs() ([]models.HabitLog, error) {
	d, err := j.data()
	if err != nil {
		return nil, err
	}
	logs := make([]models.HabitLog, 0, len(d.Logs))
	for _, log := range d.Logs {
		logs = append(logs, log)
	}
	sortLogs(logs)
	return logs, nil
}

func (j *JSONStore) DeleteLog(habitID, date string) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	key := logKey(habitID, date)
	if _, ok := d.Logs[key]; !ok {
		return fmt.Errorf("log %s %s: %w", habitID, date, ErrNotFound)
	}
	delete(d.Logs, key)
	return j.save()
}

func (j *JSONStore) ReplaceLogs(logs []models.HabitLog) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	d.Logs = make(map[string]models.HabitLog, len(logs))
	for _, log := range logs {
		d.Logs[logKey(log.HabitID, log.Date)] = log
	}
	return j.save()
}

func (j *JSONStore) GetSyncMeta() (models.SyncMeta, error) {
	d, err := j.data()
	if err != nil {
		return models.SyncMeta{}, err
	}
	return d.SyncMeta, nil
}

func (j *JSONStore) SaveSyncMeta(meta models.SyncMeta) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	d.SyncMeta = meta
	return j.save()
}

func (j *JSONStore) GetBaseSnapshot() ([]byte, error) {
	d, err := j.data()
	if err != nil {
		return nil, err
	}
	if len(d.BaseSnapshot) == 0 {
		return nil, nil
	}
	out := make([]byte, len(d.BaseSnapshot))
	copy(out, d.BaseSnapshot)
	return out, nil
}

func (j *JSONStore) SaveBaseSnapshot(data []byte) error {
	d, err := j.data()
	if err != nil {
		return err
	}
	d.BaseSnapshot = json.RawMessage(data)
	return j.save()
}

func (j *JSONStore) GetConfigPath() string { return j.path }

func (j *JSONStore) Account() string { return j.account }

func sortLogs(logs []models.HabitLog) {
	sort.Slice(logs, func(a, b int) bool {
		if logs[a].Date != logs[b].Date {
			return logs[a].Date < logs[b].Date
		}
		if logs[a].HabitID != logs[b].HabitID {
			return logs[a].HabitID < logs[b].HabitID
		}
		return strings.Compare(logs[a].ID, logs[b].ID) < 0
	})
}
