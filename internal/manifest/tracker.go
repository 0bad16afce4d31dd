package manifest

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/document"
)

// Change reasons reported by ShouldProcess.
const (
	ReasonForced    = "forced"
	ReasonNew       = "new"
	ReasonModified  = "modified"
	ReasonUnchanged = "unchanged"
)

// Tracker decides whether a source document needs reprocessing.
type Tracker struct {
	store  Store
	logger *zap.Logger
}

// NewTracker creates a Tracker over the given store.
func NewTracker(store Store, logger *zap.Logger) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, logger: logger}, nil
}

// ShouldProcess reports whether the document identified by relPath, whose
// current content hashes to fingerprint, needs processing. It returns true
// when forced, when the path has never been processed, or when the stored
// fingerprint differs from the current one.
func (t *Tracker) ShouldProcess(relPath, fingerprint string, force bool) (bool, string, error) {
	if force {
		return true, ReasonForced, nil
	}

	entry, ok, err := t.store.Get(relPath)
	if err != nil {
		return false, "", fmt.Errorf("reading manifest entry for %s: %w", relPath, err)
	}
	if !ok {
		return true, ReasonNew, nil
	}
	if entry.SourceFingerprint != fingerprint {
		return true, ReasonModified, nil
	}
	return false, ReasonUnchanged, nil
}

// Record upserts the manifest entry for a successfully processed document.
// Failed processing must never reach this method: the manifest only reflects
// documents whose full chunk set was stored.
func (t *Tracker) Record(doc *document.Document) error {
	entry := Entry{
		SourceFingerprint: doc.Fingerprint,
		TextFingerprint:   document.FingerprintText(doc.Text),
		Pages:             doc.Pages,
		ExtractedPages:    doc.ExtractedPages,
		School:            doc.Hierarchy.School,
		Class:             doc.Hierarchy.Class,
		Subject:           doc.Hierarchy.Subject,
		ProcessedAt:       timeNow().UTC(),
	}
	if err := t.store.Put(doc.RelPath, entry); err != nil {
		return fmt.Errorf("recording %s: %w", doc.RelPath, err)
	}
	t.logger.Debug("manifest entry recorded", zap.String("path", doc.RelPath))
	return nil
}
