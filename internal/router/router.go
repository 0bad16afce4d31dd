// Package router routes free-text queries to subject partitions.
//
// Routing is literal keyword containment against a configured subject mapping.
// No fuzzy or semantic matching: a query either names a subject's keywords or
// it falls through to the default partition.
package router

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/namespace"
)

// Match is a resolved subject with its fully composed namespace.
type Match struct {
	// Subject is the matched configuration entry.
	Subject *Subject

	// Namespace is the composed school_class_subject partition key.
	Namespace string

	// Score is the number of keyword hits (zero for explicit lookups).
	Score int

	// Confidence is the fraction of the subject's keywords present in the
	// query. Explicit lookups report 1.
	Confidence float64
}

// Router resolves queries and subject names against a subject mapping.
//
// A nil mapping is valid: every resolution misses, which callers treat as
// "search the default partition", not as an error.
type Router struct {
	mapping *Mapping
	logger  *zap.Logger
}

// New creates a Router. A nil logger is replaced with a no-op.
func New(mapping *Mapping, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{mapping: mapping, logger: logger}
}

// Subjects returns the primary names of all configured subjects, in
// configuration order.
func (r *Router) Subjects() []string {
	if r.mapping == nil {
		return nil
	}
	names := make([]string, 0, len(r.mapping.Subjects))
	for _, s := range r.mapping.Subjects {
		names = append(names, s.Primary)
	}
	return names
}

// Route picks the subject whose keywords best cover the query.
//
// Each subject scores one point per keyword occurring as a case-insensitive
// substring of the query. A candidate replaces the current best only on a
// strictly greater score, so the first subject in configuration order wins
// ties. A zero best score resolves to no match.
func (r *Router) Route(query, school, class string) (*Match, bool) {
	if r.mapping == nil {
		r.logger.Warn("no subject mapping available for auto-routing")
		return nil, false
	}

	queryLower := strings.ToLower(query)

	var best *Subject
	bestScore := 0
	for i := range r.mapping.Subjects {
		s := &r.mapping.Subjects[i]
		score := 0
		for _, kw := range s.Keywords {
			if strings.Contains(queryLower, strings.ToLower(kw)) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = s
		}
	}

	if best == nil {
		r.logger.Debug("no subject keywords matched query")
		return nil, false
	}

	match := &Match{
		Subject:    best,
		Namespace:  r.compose(best, school, class),
		Score:      bestScore,
		Confidence: float64(bestScore) / float64(len(best.Keywords)),
	}
	r.logger.Info("auto-routed query to subject",
		zap.String("subject", best.Primary),
		zap.Int("keyword_matches", bestScore),
		zap.String("namespace", match.Namespace),
	)
	return match, true
}

// Find resolves an explicitly named subject by primary name or alias,
// case-insensitively.
func (r *Router) Find(subject, school, class string) (*Match, bool) {
	if r.mapping == nil {
		return nil, false
	}

	want := strings.ToLower(subject)
	for i := range r.mapping.Subjects {
		s := &r.mapping.Subjects[i]
		if strings.ToLower(s.Primary) == want {
			return r.explicitMatch(s, school, class), true
		}
		for _, alias := range s.Aliases {
			if strings.ToLower(alias) == want {
				return r.explicitMatch(s, school, class), true
			}
		}
	}

	r.logger.Warn("subject not found in mapping", zap.String("subject", subject))
	return nil, false
}

func (r *Router) explicitMatch(s *Subject, school, class string) *Match {
	m := &Match{
		Subject:    s,
		Namespace:  r.compose(s, school, class),
		Confidence: 1,
	}
	r.logger.Info("using explicit subject namespace", zap.String("namespace", m.Namespace))
	return m
}

// compose joins the normalized school/class with the subject's partition key.
func (r *Router) compose(s *Subject, school, class string) string {
	return namespace.Join(namespace.Normalize(school), namespace.Normalize(class), s.PartitionKey())
}
