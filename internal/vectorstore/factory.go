package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/config"
)

// New creates the vector store backend selected by configuration.
func New(cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Store.Backend {
	case "chromem":
		return NewChromemStore(ChromemConfig{
			Path:      cfg.Store.Path,
			Dimension: cfg.Store.Dimension,
		}, logger)
	case "pinecone":
		return NewPineconeStore(PineconeConfig{
			APIKey:    cfg.Pinecone.APIKey,
			IndexHost: cfg.Pinecone.IndexHost,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Store.Backend)
	}
}
