// Package main implements the embedproc CLI for building and querying the
// educational document vector index.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/config"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/embeddings"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/logging"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/router"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/vectorstore"
)

var (
	// configPath is the optional YAML config file location.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "embedproc",
	Short: "Build and query a multi-tenant educational vector index",
	Long: `embedproc turns a tree of educational PDFs into namespaced vector
embeddings and answers queries against them.

Documents live under school/class/subject folders; each combination maps to
its own vector namespace. Unchanged documents are skipped on re-runs via a
content-fingerprint manifest.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(subjectsCmd)
	rootCmd.AddCommand(statsCmd)
}

// app bundles the components every command needs.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder *embeddings.Service
	store    vectorstore.Store
	router   *router.Router
}

// newApp loads configuration and wires the shared components.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		AccountID: cfg.Cloudflare.AccountID,
		APIToken:  cfg.Cloudflare.APIToken,
		Model:     cfg.Cloudflare.Model,
		Timeout:   cfg.Cloudflare.Timeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("building embedding service: %w", err)
	}

	store, err := vectorstore.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	mapping, err := router.LoadMapping(cfg.Paths.SubjectMapping)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading subject mapping: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		store:    store,
		router:   router.New(mapping, logger),
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close vector store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
