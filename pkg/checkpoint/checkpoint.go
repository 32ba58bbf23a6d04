package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
)

// Suffix is appended to the output path to name its checkpoint file
const Suffix = ".checkpoint"

const currentVersion = 1

// Checkpoint records how far a run has durably persisted
type Checkpoint struct {
	// LastID is the identifier of the last record in the last flushed batch
	LastID string `json:"last_id"`
	// Count is the number of records durably written so far
	Count   int       `json:"count"`
	SavedAt time.Time `json:"saved_at"`
	// Account is the handle the run was extracting
	Account string `json:"account,omitempty"`
	Version int    `json:"version"`
}

func (c *Checkpoint) validate() error {
	switch {
	case c.LastID == "":
		return fmt.Errorf("last_id is empty")
	case c.Count <= 0:
		return fmt.Errorf("count %d is not positive", c.Count)
	case c.SavedAt.IsZero():
		return fmt.Errorf("saved_at is missing")
	case c.Version > currentVersion:
		return fmt.Errorf("unsupported version %d", c.Version)
	}
	return nil
}

// Store persists a single checkpoint next to the output file
type Store struct {
	path   string
	logger logger.Logger
	now    func() time.Time
}

// NewStore creates a store for the given output path
func NewStore(outputPath string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{
		path:   outputPath + Suffix,
		logger: log,
		now:    time.Now,
	}
}

// Path returns the checkpoint file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the checkpoint. It returns nil, nil when none exists. Unreadable
// or invalid content yields nil and a CorruptCheckpoint error, which callers
// treat as "no checkpoint".
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, s.corrupt(err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, s.corrupt(err)
	}
	if err := cp.validate(); err != nil {
		return nil, s.corrupt(err)
	}

	s.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"last_id":  cp.LastID,
		"count":    cp.Count,
		"saved_at": cp.SavedAt,
	})
	return &cp, nil
}

func (s *Store) corrupt(cause error) error {
	s.logger.WithError(cause).WarnWithFields("Checkpoint unreadable, ignoring it", map[string]interface{}{
		"path": s.path,
	})
	return errs.Wrap(errs.KindCorruptCheckpoint, cause, s.path)
}

// Save replaces the checkpoint atomically: the new content is written to a
// temporary file, synced, then renamed over the old one.
func (s *Store) Save(cp Checkpoint) error {
	cp.SavedAt = s.now().UTC()
	cp.Version = currentVersion

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	syncDir(filepath.Dir(s.path))

	s.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"last_id": cp.LastID,
		"count":   cp.Count,
	})
	return nil
}

// Clear removes the checkpoint. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	os.Remove(s.path + ".tmp")
	s.logger.Debug("Checkpoint cleared")
	return nil
}

// Exists reports whether a checkpoint file is present
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// syncDir flushes a rename to disk; failures are ignored on platforms that
// cannot sync directories
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
