// Package search answers queries against the vector store, resolving the
// target partition either from an explicitly named subject or by keyword
// auto-routing.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/embeddings"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/router"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/vectorstore"
)

var (
	// ErrEmptyQuery indicates a blank query string.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrUnknownSubject indicates an explicitly named subject absent from the
	// mapping.
	ErrUnknownSubject = errors.New("subject not found in mapping")
)

// Mode reports how the target partition was chosen.
type Mode string

const (
	// ModeExplicit means the caller named the subject.
	ModeExplicit Mode = "explicit"

	// ModeAutoRoute means keyword routing picked the subject.
	ModeAutoRoute Mode = "auto_route"

	// ModeFallback means routing found no subject and the default partition
	// was searched instead.
	ModeFallback Mode = "fallback"
)

// Config holds searcher defaults.
type Config struct {
	// School and Class fill the namespace prefix when the caller gives none.
	School string
	Class  string

	// TopK is the default result count.
	TopK int
}

// Validate checks the searcher defaults.
func (c *Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	return nil
}

// Options scopes a single query.
type Options struct {
	// Subject selects explicit mode. Empty means auto-route.
	Subject string

	// School and Class override the configured defaults.
	School string
	Class  string

	// TopK overrides the configured default when positive.
	TopK int
}

// Result is one answered query.
type Result struct {
	Query     string
	Mode      Mode
	Namespace string

	// Subject is the resolved primary subject name. Empty in fallback mode.
	Subject string

	// Confidence is the routing confidence: 1 for explicit subjects, the
	// matched-keyword fraction for auto-routed ones, 0 for fallback.
	Confidence float64

	Matches []vectorstore.Match
}

// Searcher embeds queries and runs similarity search against one partition.
type Searcher struct {
	cfg      Config
	embedder embeddings.Embedder
	store    vectorstore.Store
	router   *router.Router
	logger   *zap.Logger
}

// New creates a Searcher. Embedder, store, and router are required.
func New(cfg Config, embedder embeddings.Embedder, store vectorstore.Store, r *router.Router, logger *zap.Logger) (*Searcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if r == nil {
		return nil, fmt.Errorf("router is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{cfg: cfg, embedder: embedder, store: store, router: r, logger: logger}, nil
}

// Subjects returns the configured subject names.
func (s *Searcher) Subjects() []string {
	return s.router.Subjects()
}

// Stats returns the store's vector counts per partition.
func (s *Searcher) Stats(ctx context.Context) (*vectorstore.Stats, error) {
	return s.store.Stats(ctx)
}

// Search resolves the target partition for the query, embeds it, and returns
// the top matches ranked by descending score.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	school := opts.School
	if school == "" {
		school = s.cfg.School
	}
	class := opts.Class
	if class == "" {
		class = s.cfg.Class
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	result := &Result{Query: query}
	switch {
	case opts.Subject != "":
		match, ok := s.router.Find(opts.Subject, school, class)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSubject, opts.Subject)
		}
		result.Mode = ModeExplicit
		result.Namespace = match.Namespace
		result.Subject = match.Subject.Primary
		result.Confidence = match.Confidence
	default:
		match, ok := s.router.Route(query, school, class)
		if ok {
			result.Mode = ModeAutoRoute
			result.Namespace = match.Namespace
			result.Subject = match.Subject.Primary
			result.Confidence = match.Confidence
		} else {
			result.Mode = ModeFallback
			s.logger.Info("no subject matched, searching default partition")
		}
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := s.store.Query(ctx, result.Namespace, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("querying namespace %q: %w", result.Namespace, err)
	}

	// Backends promise descending order; enforce it anyway so ranking never
	// depends on the backend in use.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	result.Matches = matches

	s.logger.Info("search complete",
		zap.String("mode", string(result.Mode)),
		zap.String("namespace", result.Namespace),
		zap.Int("matches", len(matches)),
	)
	return result, nil
}
