// Package pipeline drives the build-time flow: change detection, chunking,
// embedding, and namespace-grouped vector upserts.
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/chunker"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/document"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/embeddings"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/extract"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/manifest"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/namespace"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/vectorstore"
)

// previewLength bounds the text stored in record metadata.
const previewLength = 500

// VectorID derives the deterministic record identifier for a chunk. It
// depends on the source file name and chunk index only, never on chunk
// content: re-running the pipeline on unchanged content overwrites the same
// record instead of duplicating it.
func VectorID(sourceFile string, chunkIndex int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", sourceFile, chunkIndex)))
	return "vec_" + hex.EncodeToString(sum[:])[:12]
}

// Options configures one pipeline run.
type Options struct {
	// Force reprocesses documents regardless of manifest state.
	Force bool

	// Folders restricts the run to the named top-level school folders.
	Folders []string
}

// Summary is the run-end report.
type Summary struct {
	RunID string

	DocumentsDiscovered int
	DocumentsProcessed  int
	DocumentsSkipped    int
	DocumentsFailed     int

	ChunksCreated       int
	EmbeddingsGenerated int
	EmbeddingsFailed    int
	VectorsStored       int

	// Namespaces lists the partition keys touched by this run. The default
	// partition appears as the empty string.
	Namespaces []string

	Duration time.Duration
}

// Config holds orchestrator tunables.
type Config struct {
	// BatchSize bounds records per upsert call.
	BatchSize int
}

// Orchestrator runs the embedding pipeline over a source tree.
type Orchestrator struct {
	cfg        Config
	extractor  extract.Extractor
	tracker    *manifest.Tracker
	chunker    *chunker.Chunker
	embedder   embeddings.Embedder
	calc       *namespace.Calculator
	store      vectorstore.Store
	embedGate  Limiter
	upsertGate Limiter
	logger     *zap.Logger
}

// New creates an Orchestrator. All collaborators are required except the
// limiters and logger, which default to unlimited and no-op respectively.
func New(
	cfg Config,
	extractor extract.Extractor,
	tracker *manifest.Tracker,
	ch *chunker.Chunker,
	embedder embeddings.Embedder,
	calc *namespace.Calculator,
	store vectorstore.Store,
	embedGate, upsertGate Limiter,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if ch == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if calc == nil {
		return nil, fmt.Errorf("namespace calculator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if embedGate == nil {
		embedGate = NewIntervalLimiter(0)
	}
	if upsertGate == nil {
		upsertGate = NewIntervalLimiter(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		extractor:  extractor,
		tracker:    tracker,
		chunker:    ch,
		embedder:   embedder,
		calc:       calc,
		store:      store,
		embedGate:  embedGate,
		upsertGate: upsertGate,
		logger:     logger,
	}, nil
}

// batchChunk ties a chunk back to its originating document. The batch slice
// index is the chunk's position for embedding; metadata is always recovered
// through this pairing, never through the position of a filtered result list.
type batchChunk struct {
	doc   *document.Document
	chunk chunker.Chunk
}

// embedded is one (origin position, vector) pair surviving embedding.
type embedded struct {
	pos    int
	vector []float32
}

// Run executes the pipeline over the source tree and returns a run summary.
// Vector store failures abort the run; per-document and per-chunk failures
// are counted and skipped.
func (o *Orchestrator) Run(ctx context.Context, sourceDir string, opts Options) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	logger := o.logger.With(zap.String("run_id", summary.RunID))

	files, err := extract.Discover(sourceDir, extract.DiscoverOptions{Folders: opts.Folders}, logger)
	if err != nil {
		return nil, fmt.Errorf("discovering documents: %w", err)
	}
	summary.DocumentsDiscovered = len(files)

	docs, err := o.collectDocuments(ctx, files, opts.Force, summary, logger)
	if err != nil {
		return nil, err
	}

	batch := o.chunkDocuments(docs, summary, logger)
	results := o.embedBatch(ctx, batch, summary, logger)

	failedDocs := make(map[string]bool)
	for _, bc := range batch {
		failedDocs[bc.doc.RelPath] = false
	}
	// Any chunk whose embedding was dropped leaves its document incomplete.
	surviving := make(map[int]bool, len(results))
	for _, r := range results {
		surviving[r.pos] = true
	}
	for pos, bc := range batch {
		if !surviving[pos] {
			failedDocs[bc.doc.RelPath] = true
		}
	}

	grouped := o.groupByNamespace(batch, results)
	if err := o.upsertGroups(ctx, grouped, summary, logger); err != nil {
		return nil, err
	}

	// The manifest only reflects documents whose full chunk set was stored.
	for _, doc := range docs {
		if failedDocs[doc.RelPath] {
			summary.DocumentsFailed++
			logger.Warn("document incomplete, not recorded in manifest",
				zap.String("path", doc.RelPath),
			)
			continue
		}
		if err := o.tracker.Record(doc); err != nil {
			return nil, fmt.Errorf("updating manifest: %w", err)
		}
		summary.DocumentsProcessed++
	}

	summary.Duration = time.Since(start)
	logger.Info("pipeline run complete",
		zap.Int("processed", summary.DocumentsProcessed),
		zap.Int("skipped", summary.DocumentsSkipped),
		zap.Int("failed", summary.DocumentsFailed),
		zap.Int("vectors_stored", summary.VectorsStored),
		zap.Strings("namespaces", summary.Namespaces),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// collectDocuments fingerprints, filters, and extracts the documents that
// need processing.
func (o *Orchestrator) collectDocuments(
	ctx context.Context,
	files []extract.File,
	force bool,
	summary *Summary,
	logger *zap.Logger,
) ([]*document.Document, error) {
	var docs []*document.Document
	for _, file := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		fingerprint, err := document.FingerprintFile(file.AbsPath)
		if err != nil {
			// Staleness cannot be determined; excluding the document is the
			// only safe call.
			summary.DocumentsFailed++
			logger.Error("failed to fingerprint document", zap.String("path", file.RelPath), zap.Error(err))
			continue
		}

		process, reason, err := o.tracker.ShouldProcess(file.RelPath, fingerprint, force)
		if err != nil {
			return nil, fmt.Errorf("consulting manifest: %w", err)
		}
		if !process {
			summary.DocumentsSkipped++
			logger.Debug("skipping document", zap.String("path", file.RelPath), zap.String("reason", reason))
			continue
		}

		result, err := o.extractor.Extract(ctx, file.AbsPath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			summary.DocumentsFailed++
			logger.Error("failed to extract document", zap.String("path", file.RelPath), zap.Error(err))
			continue
		}

		docs = append(docs, &document.Document{
			RelPath:        file.RelPath,
			AbsPath:        file.AbsPath,
			Text:           result.Text,
			Pages:          result.Pages,
			ExtractedPages: result.ExtractedPages,
			Hierarchy:      document.ParseHierarchy(file.RelPath),
			Fingerprint:    fingerprint,
		})
		logger.Info("document queued for processing",
			zap.String("path", file.RelPath),
			zap.String("reason", reason),
		)
	}
	return docs, nil
}

// chunkDocuments concatenates every document's chunks into one ordered batch.
func (o *Orchestrator) chunkDocuments(docs []*document.Document, summary *Summary, logger *zap.Logger) []batchChunk {
	var batch []batchChunk
	for _, doc := range docs {
		count := 0
		for ch := range o.chunker.Seq(doc.Text) {
			batch = append(batch, batchChunk{doc: doc, chunk: ch})
			count++
		}
		summary.ChunksCreated += count
		logger.Debug("chunked document", zap.String("path", doc.RelPath), zap.Int("chunks", count))
	}
	return batch
}

// embedBatch submits chunk texts one at a time, preserving original batch
// position. A failure for position i drops that position entirely; it never
// shifts the pairing of later positions with their chunks.
func (o *Orchestrator) embedBatch(ctx context.Context, batch []batchChunk, summary *Summary, logger *zap.Logger) []embedded {
	results := make([]embedded, 0, len(batch))
	for pos, bc := range batch {
		if err := o.embedGate.Wait(ctx); err != nil {
			logger.Warn("embedding gate interrupted", zap.Error(err))
			return results
		}

		vector, err := o.embedder.EmbedQuery(ctx, bc.chunk.Text)
		if err != nil {
			summary.EmbeddingsFailed++
			logger.Warn("failed to embed chunk, dropping it",
				zap.Int("batch_position", pos),
				zap.String("path", bc.doc.RelPath),
				zap.Int("chunk_index", bc.chunk.Index),
				zap.Error(err),
			)
			continue
		}
		results = append(results, embedded{pos: pos, vector: vector})
		summary.EmbeddingsGenerated++

		if (pos+1)%10 == 0 {
			logger.Info("embedding progress", zap.Int("done", pos+1), zap.Int("total", len(batch)))
		}
	}
	return results
}

// groupByNamespace converts surviving (position, vector) pairs into records
// batched per partition key.
func (o *Orchestrator) groupByNamespace(batch []batchChunk, results []embedded) map[string][]vectorstore.Record {
	grouped := make(map[string][]vectorstore.Record)
	for _, r := range results {
		bc := batch[r.pos]
		key, _ := o.calc.Key(bc.doc.Hierarchy)
		grouped[key] = append(grouped[key], vectorstore.Record{
			ID:       VectorID(bc.doc.SourceFile(), bc.chunk.Index),
			Vector:   r.vector,
			Metadata: recordMetadata(bc.doc, bc.chunk),
		})
	}
	return grouped
}

// upsertGroups writes each namespace batch in bounded slices. Any store
// failure is fatal: a partial write with a fresh manifest entry would hide
// unstored chunks forever.
func (o *Orchestrator) upsertGroups(
	ctx context.Context,
	grouped map[string][]vectorstore.Record,
	summary *Summary,
	logger *zap.Logger,
) error {
	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		records := grouped[key]
		for start := 0; start < len(records); start += o.cfg.BatchSize {
			end := start + o.cfg.BatchSize
			if end > len(records) {
				end = len(records)
			}
			if err := o.upsertGate.Wait(ctx); err != nil {
				return err
			}
			if err := o.store.Upsert(ctx, key, records[start:end]); err != nil {
				return fmt.Errorf("upserting into namespace %q: %w", key, err)
			}
			summary.VectorsStored += end - start
			logger.Info("upserted batch",
				zap.String("namespace", key),
				zap.Int("stored", summary.VectorsStored),
			)
		}
	}
	summary.Namespaces = keys
	return nil
}

func recordMetadata(doc *document.Document, ch chunker.Chunk) map[string]any {
	preview := ch.Text
	if runes := []rune(preview); len(runes) > previewLength {
		preview = string(runes[:previewLength])
	}
	return map[string]any{
		"text":        preview,
		"source_file": doc.SourceFile(),
		"source_path": doc.RelPath,
		"total_pages": doc.Pages,
		"school":      doc.Hierarchy.School,
		"class":       doc.Hierarchy.Class,
		"subject":     doc.Hierarchy.Subject,
		"chunk_index": ch.Index,
		"chunk_size":  ch.Size(),
	}
}
