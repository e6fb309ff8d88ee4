package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/walsidalw/opencast-matomo-adapter/internal/ports"
)

const dateFormat = "2006-01-02"

// FileStore persists the last fully processed date as a single line in a
// text file. It is the only state that outlives a process run.
type FileStore struct {
	path string
}

var _ ports.CheckpointStore = (*FileStore)(nil)

func New(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the checkpoint date. A missing file yields yesterday, so the
// first run of a fresh deployment covers today only; seed the file to
// backfill further into the past.
func (f *FileStore) Load() (time.Time, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read checkpoint %s: %w", f.path, err)
	}

	day, err := time.Parse(dateFormat, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint %s: %w", f.path, err)
	}
	return day.UTC(), nil
}

// Save writes the checkpoint date atomically via a temp file and rename.
func (f *FileStore) Save(day time.Time) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	name := tmp.Name()

	if _, err := tmp.WriteString(day.Format(dateFormat) + "\n"); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(name, f.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace checkpoint %s: %w", f.path, err)
	}
	return nil
}
