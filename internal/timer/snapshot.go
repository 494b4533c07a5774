package timer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Snapshot is the suspend-time state of the running tickets.
type Snapshot struct {
	Session string          `json:"session,omitempty"`
	SavedAt time.Time       `json:"saved_at"`
	Tickets map[int64]Entry `json:"tickets"`
}

type Entry struct {
	StartTime time.Time `json:"start_time"`
	CookPin   int64     `json:"cook_pin,omitempty"`
}

// Empty reports whether there is nothing to restore.
func (s Snapshot) Empty() bool { return len(s.Tickets) == 0 }

// FileSnapshots keeps a single snapshot in a JSON file.
type FileSnapshots struct {
	path string
}

func NewFileSnapshots(path string) *FileSnapshots {
	return &FileSnapshots{path: path}
}

func (f *FileSnapshots) Path() string { return f.path }

// Save replaces the snapshot file atomically.
func (f *FileSnapshots) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. ok is false when no file exists. A file that does
// not decode, or holds a ticket without a start time, yields
// ErrCorruptSnapshot.
func (f *FileSnapshots) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	for id, e := range snap.Tickets {
		if id <= 0 || e.StartTime.IsZero() {
			return Snapshot{}, false, fmt.Errorf("%w: ticket %d has no start time", ErrCorruptSnapshot, id)
		}
	}
	return snap, true, nil
}

// Delete removes the snapshot file. A missing file is not an error.
func (f *FileSnapshots) Delete() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
