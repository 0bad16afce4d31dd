// Package manifest tracks which source documents have been processed and with
// what content fingerprint, so unchanged content is never re-embedded.
package manifest

import (
	"sync"
	"time"
)

// Entry records the outcome of the last successful processing of one source
// document. Staleness is detected purely by fingerprint mismatch, never by
// modification time.
type Entry struct {
	// SourceFingerprint is the sha256 of the raw source bytes that produced
	// the currently-stored extraction.
	SourceFingerprint string `json:"sourceFingerprint"`

	// TextFingerprint is the sha256 of the extracted text.
	TextFingerprint string `json:"textFingerprint"`

	Pages          int    `json:"pages"`
	ExtractedPages int    `json:"extractedPages"`
	School         string `json:"school"`
	Class          string `json:"class"`
	Subject        string `json:"subject"`

	// ProcessedAt is when the document was last successfully processed.
	ProcessedAt time.Time `json:"processedAt"`
}

// Store is the narrow persistence interface behind the manifest.
//
// Keys are slash-separated paths relative to the source root. Implementations
// have single-writer semantics per run; concurrent runs are not supported.
type Store interface {
	// Get returns the entry for a relative path, if present.
	Get(relPath string) (Entry, bool, error)

	// Put upserts the entry for a relative path.
	Put(relPath string, e Entry) error

	// All returns a snapshot of every entry.
	All() (map[string]Entry, error)
}

// MemStore is an in-memory Store for tests and dry runs.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]Entry)}
}

// Get implements Store.
func (m *MemStore) Get(relPath string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[relPath]
	return e, ok, nil
}

// Put implements Store.
func (m *MemStore) Put(relPath string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[relPath] = e
	return nil
}

// All implements Store.
func (m *MemStore) All() (map[string]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}
