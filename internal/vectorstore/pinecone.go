package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/config"
)

// PineconeConfig holds configuration for the Pinecone REST backend.
type PineconeConfig struct {
	// APIKey authenticates against the index.
	APIKey config.Secret

	// IndexHost is the index data-plane host, with or without scheme.
	IndexHost string

	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c *PineconeConfig) Validate() error {
	if !c.APIKey.IsSet() {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}
	if c.IndexHost == "" {
		return fmt.Errorf("%w: index host is required", ErrInvalidConfig)
	}
	return nil
}

// PineconeStore implements Store against the Pinecone vector database REST
// API. Namespaces map directly onto Pinecone namespaces; the empty namespace
// is Pinecone's own default partition.
type PineconeStore struct {
	config  PineconeConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewPineconeStore creates a PineconeStore.
func NewPineconeStore(cfg PineconeConfig, logger *zap.Logger) (*PineconeStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	baseURL := cfg.IndexHost
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &PineconeStore{
		config:  cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float32        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type pineconeStatsResponse struct {
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
	TotalVectorCount int `json:"totalVectorCount"`
}

func (s *PineconeStore) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Api-Key", s.config.APIKey.Value())
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return nil
}

// Upsert implements Store.
func (s *PineconeStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(records) == 0 {
		return ErrEmptyRecords
	}

	req := pineconeUpsertRequest{
		Vectors:   make([]pineconeVector, len(records)),
		Namespace: namespace,
	}
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record %d has empty ID", ErrUpsertFailed, i)
		}
		req.Vectors[i] = pineconeVector{ID: rec.ID, Values: rec.Vector, Metadata: rec.Metadata}
	}

	if err := s.post(ctx, "/vectors/upsert", req, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
	}

	s.logger.Debug("upserted records",
		zap.String("namespace", namespace),
		zap.Int("count", len(records)),
	)
	return nil
}

// Query implements Store.
func (s *PineconeStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrQueryFailed, topK)
	}

	req := pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		Namespace:       namespace,
		IncludeMetadata: true,
	}
	var resp pineconeQueryResponse
	if err := s.post(ctx, "/query", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	matches := make([]Match, len(resp.Matches))
	for i, m := range resp.Matches {
		matches[i] = Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return matches, nil
}

// Stats implements Store.
func (s *PineconeStore) Stats(ctx context.Context) (*Stats, error) {
	var resp pineconeStatsResponse
	if err := s.post(ctx, "/describe_index_stats", struct{}{}, &resp); err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalVectors: resp.TotalVectorCount,
		Namespaces:   make(map[string]int, len(resp.Namespaces)),
	}
	for ns, info := range resp.Namespaces {
		stats.Namespaces[ns] = info.VectorCount
	}
	return stats, nil
}

// Close implements Store.
func (s *PineconeStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
