// Package backup keeps rotating local snapshots of the export bundle.
// A snapshot is written before any sync merge overwrites local state so
// a bad merge can always be undone.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
)

const timestampFormat = "20060102-150405"

// Info describes a stored snapshot.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Manager handles snapshot operations under the config directory.
type Manager struct {
	backupDir string
}

// NewManager creates a backup manager next to the given storage path.
func NewManager(configPath string) *Manager {
	return &Manager{
		backupDir: filepath.Join(filepath.Dir(configPath), constants.BackupDirName),
	}
}

func (m *Manager) BackupDir() string {
	return m.backupDir
}

// WriteSnapshot stores a bundle payload as a timestamped file and
// rotates out snapshots beyond the retention limit.
func (m *Manager) WriteSnapshot(data []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("unable to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s%s", constants.BackupFilePrefix, now.Format(timestampFormat), constants.BackupFileSuffix)
	path := filepath.Join(m.backupDir, name)

	// Same-second snapshots get a counter suffix.
	counter := 1
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s%s-%d%s", constants.BackupFilePrefix, now.Format(timestampFormat), counter, constants.BackupFileSuffix)
		path = filepath.Join(m.backupDir, name)
		counter++
		if counter > 100 {
			return "", fmt.Errorf("unable to generate unique snapshot filename")
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("unable to write snapshot: %w", err)
	}

	if err := m.rotate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to rotate old snapshots: %v\n", err)
	}

	return path, nil
}

// ListSnapshots returns stored snapshots sorted newest first.
func (m *Manager) ListSnapshots() ([]Info, error) {
	if _, err := os.Stat(m.backupDir); os.IsNotExist(err) {
		return []Info{}, nil
	}

	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return nil, fmt.Errorf("unable to read backup directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, constants.BackupFilePrefix) || !strings.HasSuffix(name, constants.BackupFileSuffix) {
			continue
		}

		timestampStr := strings.TrimPrefix(name, constants.BackupFilePrefix)
		timestampStr = strings.TrimSuffix(timestampStr, constants.BackupFileSuffix)
		// Strip a counter suffix when present.
		if parts := strings.Split(timestampStr, "-"); len(parts) == 3 {
			timestampStr = strings.Join(parts[:2], "-")
		}

		timestamp, err := time.Parse(timestampFormat, timestampStr)
		if err != nil {
			continue
		}

		path := filepath.Join(m.backupDir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		snapshots = append(snapshots, Info{
			Path:      path,
			Timestamp: timestamp,
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].Timestamp.Equal(snapshots[j].Timestamp) {
			return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
		}
		return snapshots[i].Path > snapshots[j].Path
	})

	return snapshots, nil
}

// ReadSnapshot returns the contents of a stored snapshot.
func (m *Manager) ReadSnapshot(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read snapshot: %w", err)
	}
	return data, nil
}

func (m *Manager) rotate() error {
	snapshots, err := m.ListSnapshots()
	if err != nil {
		return err
	}

	if len(snapshots) <= constants.MaxBackups {
		return nil
	}

	for i := constants.MaxBackups; i < len(snapshots); i++ {
		if err := os.Remove(snapshots[i].Path); err != nil {
			return fmt.Errorf("unable to remove old snapshot %s: %w", snapshots[i].Path, err)
		}
	}

	return nil
}
