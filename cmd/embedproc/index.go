package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/chunker"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/extract"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/manifest"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/namespace"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/pipeline"
)

var (
	indexForce   bool
	indexFolders []string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Process source documents into the vector index",
	Long: `Walk the source tree, extract text from new or changed PDFs, chunk and
embed it, and upsert the vectors into per-subject namespaces.

Examples:
  # Incremental run over the whole source tree
  embedproc index

  # Reprocess everything regardless of manifest state
  embedproc index --force

  # Restrict the run to one school folder
  embedproc index --folder math`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "reprocess documents even if unchanged")
	indexCmd.Flags().StringSliceVar(&indexFolders, "folder", nil, "restrict to the named top-level folders (repeatable)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := manifest.OpenFileStore(a.cfg.Paths.ManifestPath)
	if err != nil {
		return fmt.Errorf("opening manifest: %w", err)
	}
	tracker, err := manifest.NewTracker(store, a.logger)
	if err != nil {
		return err
	}

	ch, err := chunker.New(a.cfg.Chunking.Size, a.cfg.Chunking.Overlap, a.cfg.Chunking.MinLength)
	if err != nil {
		return fmt.Errorf("building chunker: %w", err)
	}

	orch, err := pipeline.New(
		pipeline.Config{BatchSize: a.cfg.Pipeline.BatchSize},
		extract.NewPDFExtractor(a.logger),
		tracker,
		ch,
		a.embedder,
		namespace.NewCalculator(a.logger),
		a.store,
		pipeline.NewIntervalLimiter(a.cfg.Pipeline.EmbedInterval.Duration()),
		pipeline.NewIntervalLimiter(a.cfg.Pipeline.UpsertInterval.Duration()),
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	summary, err := orch.Run(ctx, a.cfg.Paths.SourceDir, pipeline.Options{
		Force:   indexForce,
		Folders: indexFolders,
	})
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	printSummary(cmd, summary)
	return nil
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	cmd.Printf("Run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	cmd.Printf("  Documents:  %d discovered, %d processed, %d skipped, %d failed\n",
		s.DocumentsDiscovered, s.DocumentsProcessed, s.DocumentsSkipped, s.DocumentsFailed)
	cmd.Printf("  Chunks:     %d created\n", s.ChunksCreated)
	cmd.Printf("  Embeddings: %d generated, %d failed\n", s.EmbeddingsGenerated, s.EmbeddingsFailed)
	cmd.Printf("  Vectors:    %d stored\n", s.VectorsStored)
	if len(s.Namespaces) > 0 {
		names := make([]string, len(s.Namespaces))
		for i, ns := range s.Namespaces {
			if ns == "" {
				names[i] = "(default)"
			} else {
				names[i] = ns
			}
		}
		cmd.Printf("  Namespaces: %s\n", strings.Join(names, ", "))
	}
}
