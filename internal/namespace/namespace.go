// Package namespace computes vector store partition keys.
//
// A namespace scopes a disjoint subset of vectors to one school/class/subject
// tuple. Records without a computable namespace route to the store's single
// default partition.
package namespace

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/document"
)

// Normalize lowercases a hierarchy field and replaces spaces with underscores.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// Join composes a namespace key from already-normalized parts.
func Join(school, class, subject string) string {
	return school + "_" + class + "_" + subject
}

// Calculator derives partition keys from document hierarchy metadata.
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator creates a Calculator. A nil logger is replaced with a no-op.
func NewCalculator(logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{logger: logger}
}

// Key returns the namespace for a hierarchy, or ("", false) when any field is
// missing. An incomplete hierarchy never yields a partial key; the caller
// routes the record to the default partition instead.
func (c *Calculator) Key(h document.Hierarchy) (string, bool) {
	if !h.Complete() {
		c.logger.Debug("incomplete hierarchy, routing to default partition",
			zap.Strings("missing", h.Missing()),
		)
		return "", false
	}
	return Join(Normalize(h.School), Normalize(h.Class), Normalize(h.Subject)), true
}
