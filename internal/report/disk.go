package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/nixkil/nixkil/internal/runner"
)

// DiskStore writes results as JSON files to a lazily-created directory.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a new DiskStore rooted at dir. When dir is empty a
// temp directory is created lazily on the first Save.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Save writes a result as a JSON file to disk.
func (s *DiskStore) Save(result *runner.Result) error {
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result %s: %w", result.RunID, err)
	}
	path := filepath.Join(dir, result.RunID+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing result %s: %w", result.RunID, err)
	}
	return nil
}

// Load reads a result from disk.
func (s *DiskStore) Load(runID string) (*runner.Result, error) {
	if err := uuid.Validate(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, runID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result %s: %w", runID, err)
	}
	var result runner.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling result %s: %w", runID, err)
	}
	return &result, nil
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o700); err != nil {
			return "", fmt.Errorf("creating result directory: %w", err)
		}
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "nixkil-runs-*")
	if err != nil {
		return "", fmt.Errorf("creating result directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}
