package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is the current manifest file format version.
const Version = 1

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// fileFormat is the on-disk shape of the manifest: a single JSON object
// holding every entry, rewritten as a whole on each Put.
type fileFormat struct {
	Version     int              `json:"version"`
	LastUpdated time.Time        `json:"lastUpdated"`
	Files       map[string]Entry `json:"files"`
}

// FileStore is a file-backed Store persisting the manifest as a whole-file
// JSON snapshot. The entry map is append-only across runs: entries are only
// ever created or overwritten, never dropped.
type FileStore struct {
	path    string
	entries map[string]Entry
}

// OpenFileStore loads the manifest at path, creating an empty one in memory
// if the file does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if f.Version > Version {
		return nil, fmt.Errorf("manifest %s has unsupported version %d", path, f.Version)
	}
	if f.Files != nil {
		s.entries = f.Files
	}
	return s, nil
}

// Get implements Store.
func (s *FileStore) Get(relPath string) (Entry, bool, error) {
	e, ok := s.entries[relPath]
	return e, ok, nil
}

// Put implements Store. The whole snapshot is rewritten on each call; with one
// writer per run this keeps the file consistent after any abort.
func (s *FileStore) Put(relPath string, e Entry) error {
	s.entries[relPath] = e
	return s.flush()
}

// All implements Store.
func (s *FileStore) All() (map[string]Entry, error) {
	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func (s *FileStore) flush() error {
	f := fileFormat{
		Version:     Version,
		LastUpdated: timeNow().UTC(),
		Files:       s.entries,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating manifest directory: %w", err)
		}
	}

	// Write-then-rename so a crash mid-write cannot truncate the manifest.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}
