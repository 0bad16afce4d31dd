// Package document defines the source document model shared by the
// extraction, manifest, and pipeline packages.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Hierarchy is the school/class/subject tuple parsed from a document's
// location under the source root.
type Hierarchy struct {
	School  string `json:"school"`
	Class   string `json:"class"`
	Subject string `json:"subject"`
}

// Complete reports whether all three fields are present.
func (h Hierarchy) Complete() bool {
	return h.School != "" && h.Class != "" && h.Subject != ""
}

// Missing returns the names of empty hierarchy fields.
func (h Hierarchy) Missing() []string {
	var missing []string
	if h.School == "" {
		missing = append(missing, "school")
	}
	if h.Class == "" {
		missing = append(missing, "class")
	}
	if h.Subject == "" {
		missing = append(missing, "subject")
	}
	return missing
}

// Document is one extracted source document, owned by the pipeline for the
// duration of a run. Identity is the relative path under the source root.
type Document struct {
	// RelPath is the slash-separated path relative to the source root.
	RelPath string

	// AbsPath is the absolute filesystem path to the source file.
	AbsPath string

	// Text is the extracted text content.
	Text string

	// Pages is the page count of the source file.
	Pages int

	// ExtractedPages is the number of pages that yielded text.
	ExtractedPages int

	// Hierarchy is parsed from the first three segments of RelPath.
	Hierarchy Hierarchy

	// Fingerprint is the sha256 hex digest of the raw source bytes.
	Fingerprint string
}

// SourceFile returns the base name of the source file.
func (d *Document) SourceFile() string {
	return filepath.Base(d.RelPath)
}

// ParseHierarchy derives the school/class/subject tuple from the first three
// segments of a slash-separated relative path. Paths shallower than three
// directory levels yield a partially-empty hierarchy; callers decide how to
// route those (see the namespace package).
func ParseHierarchy(relPath string) Hierarchy {
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	var h Hierarchy
	// The last segment is the file itself, never a hierarchy level.
	if len(parts) > 1 {
		h.School = parts[0]
	}
	if len(parts) > 2 {
		h.Class = parts[1]
	}
	if len(parts) > 3 {
		h.Subject = parts[2]
	}
	return h
}

// FingerprintFile returns the sha256 hex digest of a file's bytes.
//
// A read failure means staleness cannot be determined for that file: callers
// must exclude the document and report the error, never treat it as unchanged.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintText returns the sha256 hex digest of a string.
func FingerprintText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
