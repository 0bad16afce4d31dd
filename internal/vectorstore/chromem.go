package vectorstore

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// defaultCollection backs the default partition (records without a namespace).
const defaultCollection = "default"

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Dimension is the expected embedding dimensionality.
	Dimension int
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database. Each namespace maps to one collection; the default
// partition lives in its own collection.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore creates a ChromemStore persisting under config.Path.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
	}

	db, err := chromem.NewPersistentDB(config.Path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Int("dimension", config.Dimension),
	)

	return &ChromemStore{db: db, config: config, logger: logger}, nil
}

// noEmbedding is installed as the collection embedding func. Every record
// arrives with a precomputed vector, so a call into this func is a bug.
func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("store holds precomputed embeddings only")
}

func collectionName(namespace string) string {
	if namespace == "" {
		return defaultCollection
	}
	return namespace
}

// Upsert implements Store. Re-adding an existing ID overwrites the stored
// record, which is what makes pipeline re-runs idempotent.
func (s *ChromemStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(records) == 0 {
		return ErrEmptyRecords
	}

	collection, err := s.db.GetOrCreateCollection(collectionName(namespace), nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("%w: getting collection %s: %v", ErrUpsertFailed, collectionName(namespace), err)
	}

	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record %d has empty ID", ErrUpsertFailed, i)
		}
		if len(rec.Vector) != s.config.Dimension {
			return fmt.Errorf("%w: record %s has dimension %d, want %d",
				ErrUpsertFailed, rec.ID, len(rec.Vector), s.config.Dimension)
		}
		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   metadataString(rec.Metadata, "text"),
			Metadata:  stringifyMetadata(rec.Metadata),
			Embedding: rec.Vector,
		}
	}

	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}

	s.logger.Debug("upserted records",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)),
	)
	return nil
}

// Query implements Store.
func (s *ChromemStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrQueryFailed, topK)
	}

	collection := s.db.GetCollection(collectionName(namespace), noEmbedding)
	if collection == nil {
		return nil, nil
	}

	// chromem rejects nResults above the collection size.
	if count := collection.Count(); topK > count {
		if count == 0 {
			return nil, nil
		}
		topK = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	matches := make([]Match, len(results))
	for i, res := range results {
		matches[i] = Match{
			ID:       res.ID,
			Score:    res.Similarity,
			Metadata: anyMetadata(res.Metadata),
		}
	}
	return matches, nil
}

// Stats implements Store.
func (s *ChromemStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Namespaces: make(map[string]int)}
	for name, collection := range s.db.ListCollections() {
		count := collection.Count()
		key := name
		if name == defaultCollection {
			key = ""
		}
		stats.Namespaces[key] = count
		stats.TotalVectors += count
	}
	return stats, nil
}

// Close implements Store. chromem persists on write, nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// stringifyMetadata converts metadata values to chromem's string map.
func stringifyMetadata(md map[string]any) map[string]string {
	if md == nil {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func anyMetadata(md map[string]string) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

func metadataString(md map[string]any, key string) string {
	if v, ok := md[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}
