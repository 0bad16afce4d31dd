// Package embeddings provides embedding generation via Cloudflare Workers AI.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	// Any failure aborts the whole call; per-text failure tolerance is the
	// caller's concern (see the pipeline package).
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds configuration for the Cloudflare embedding service.
type Config struct {
	// AccountID is the Cloudflare account identifier.
	AccountID string

	// APIToken authenticates against the Workers AI API.
	APIToken config.Secret

	// Model is the embedding model, e.g. "@cf/baai/bge-base-en-v1.5".
	Model string

	// BaseURL overrides the API endpoint (tests). Empty means production.
	BaseURL string

	// Timeout bounds each HTTP call.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("%w: account ID required", ErrInvalidConfig)
	}
	if !c.APIToken.IsSet() {
		return fmt.Errorf("%w: API token required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service calls the Cloudflare Workers AI run endpoint.
type Service struct {
	config Config
	client *http.Client
}

// NewService creates a new embedding service with the given configuration.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// cfRequest is the request body for the Workers AI run endpoint.
type cfRequest struct {
	Text string `json:"text"`
}

// cfResponse is the relevant part of the Workers AI response envelope.
type cfResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Data [][]float32 `json:"data"`
	} `json:"result"`
}

func (s *Service) endpoint() string {
	base := s.config.BaseURL
	if base == "" {
		base = "https://api.cloudflare.com/client/v4"
	}
	return fmt.Sprintf("%s/accounts/%s/ai/run/%s", base, s.config.AccountID, s.config.Model)
}

// EmbedQuery generates an embedding for a single text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	body, err := json.Marshal(cfRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.config.APIToken.Value())
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var decoded cfResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !decoded.Success {
		msg := "unknown error"
		if len(decoded.Errors) > 0 {
			msg = decoded.Errors[0].Message
		}
		return nil, fmt.Errorf("%w: %s", ErrEmbeddingFailed, msg)
	}
	if len(decoded.Result.Data) == 0 {
		return nil, fmt.Errorf("%w: response contained no embedding", ErrEmbeddingFailed)
	}

	return decoded.Result.Data[0], nil
}

// EmbedDocuments generates embeddings for multiple texts by calling the run
// endpoint once per text.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
