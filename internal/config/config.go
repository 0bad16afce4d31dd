// Package config provides configuration loading for the embeddings processor.
//
// Configuration is an explicit immutable value: it is loaded once at startup
// and passed into each component constructor. No package-level state.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the embeddings processor.
type Config struct {
	Cloudflare CloudflareConfig `koanf:"cloudflare"`
	Pinecone   PineconeConfig   `koanf:"pinecone"`
	Store      StoreConfig      `koanf:"store"`
	Paths      PathsConfig      `koanf:"paths"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Search     SearchConfig     `koanf:"search"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// CloudflareConfig holds Workers AI embedding API settings.
type CloudflareConfig struct {
	AccountID string   `koanf:"account_id"`
	APIToken  Secret   `koanf:"api_token"`
	Model     string   `koanf:"model"`
	Timeout   Duration `koanf:"timeout"`
}

// PineconeConfig holds Pinecone index settings (used when store.backend is "pinecone").
type PineconeConfig struct {
	APIKey    Secret `koanf:"api_key"`
	IndexHost string `koanf:"index_host"`
	IndexName string `koanf:"index_name"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is "chromem" (embedded) or "pinecone" (remote).
	Backend string `koanf:"backend"`

	// Path is the persistence directory for the embedded backend.
	Path string `koanf:"path"`

	// Dimension is the embedding dimensionality. Must match the embedder.
	Dimension int `koanf:"dimension"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	SourceDir      string `koanf:"source_dir"`
	ManifestPath   string `koanf:"manifest_path"`
	SubjectMapping string `koanf:"subject_mapping"`
}

// ChunkingConfig controls text chunking.
type ChunkingConfig struct {
	Size      int `koanf:"size"`
	Overlap   int `koanf:"overlap"`
	MinLength int `koanf:"min_length"`
}

// PipelineConfig controls the embed/upsert pipeline.
type PipelineConfig struct {
	// BatchSize bounds the number of records per upsert call.
	BatchSize int `koanf:"batch_size"`

	// EmbedInterval is the minimum spacing between embedding calls.
	EmbedInterval Duration `koanf:"embed_interval"`

	// UpsertInterval is the minimum spacing between upsert calls.
	UpsertInterval Duration `koanf:"upsert_interval"`
}

// SearchConfig holds query-time defaults.
type SearchConfig struct {
	TopK         int    `koanf:"top_k"`
	School       string `koanf:"school"`
	Class        string `koanf:"class"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a Config with production-ready defaults. The chunking and
// batching numbers match the index the processor was originally built against;
// changing chunk size or overlap invalidates existing vector IDs only if the
// source content also changed, but it does shift every chunk boundary.
func Default() Config {
	return Config{
		Cloudflare: CloudflareConfig{
			Model:   "@cf/baai/bge-base-en-v1.5",
			Timeout: Duration(30 * time.Second),
		},
		Pinecone: PineconeConfig{
			IndexName: "educational-ai",
		},
		Store: StoreConfig{
			Backend:   "chromem",
			Path:      "./vectorstore",
			Dimension: 768,
		},
		Paths: PathsConfig{
			SourceDir:      "./materiale_didactice",
			ManifestPath:   "./manifest.json",
			SubjectMapping: "./subject_mapping.json",
		},
		Chunking: ChunkingConfig{
			Size:      500,
			Overlap:   100,
			MinLength: 50,
		},
		Pipeline: PipelineConfig{
			BatchSize:      32,
			EmbedInterval:  Duration(100 * time.Millisecond),
			UpsertInterval: Duration(500 * time.Millisecond),
		},
		Search: SearchConfig{
			TopK:   5,
			School: "scoala_normala",
			Class:  "clasa_0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "chromem", "pinecone":
	default:
		return fmt.Errorf("store.backend must be 'chromem' or 'pinecone', got %q", c.Store.Backend)
	}
	if c.Store.Dimension <= 0 {
		return fmt.Errorf("store.dimension must be positive, got %d", c.Store.Dimension)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	if c.Chunking.MinLength < 0 {
		return fmt.Errorf("chunking.min_length cannot be negative")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Store.Backend == "pinecone" {
		if !c.Pinecone.APIKey.IsSet() {
			return fmt.Errorf("pinecone.api_key is required for the pinecone backend")
		}
		if c.Pinecone.IndexHost == "" {
			return fmt.Errorf("pinecone.index_host is required for the pinecone backend")
		}
	}
	return nil
}
