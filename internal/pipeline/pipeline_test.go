package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/chunker"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/extract"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/manifest"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/namespace"
	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/vectorstore"
)

// fakeExtractor returns canned text keyed by base file name.
type fakeExtractor struct {
	texts map[string]string
	fail  map[string]bool
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (*extract.Result, error) {
	base := filepath.Base(path)
	if f.fail[base] {
		return nil, fmt.Errorf("extraction broke for %s", base)
	}
	text, ok := f.texts[base]
	if !ok {
		return nil, fmt.Errorf("no canned text for %s", base)
	}
	return &extract.Result{Text: text, Pages: 3, ExtractedPages: 3}, nil
}

// fakeEmbedder returns a marker vector derived from the text's first rune and
// length, and fails for any text containing a poison marker.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	poison string
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.poison != "" && strings.Contains(text, f.poison) {
		return nil, fmt.Errorf("embedding rejected")
	}
	return []float32{float32(text[0]), float32(len(text)), 0}, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// memStore is an in-memory vectorstore.Store recording every upsert.
type memStore struct {
	mu      sync.Mutex
	records map[string]map[string]vectorstore.Record // namespace -> id -> record
	upserts int
	failAll bool
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]map[string]vectorstore.Record)}
}

func (m *memStore) Upsert(ctx context.Context, ns string, records []vectorstore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return vectorstore.ErrUpsertFailed
	}
	m.upserts++
	if m.records[ns] == nil {
		m.records[ns] = make(map[string]vectorstore.Record)
	}
	for _, r := range records {
		m.records[ns][r.ID] = r
	}
	return nil
}

func (m *memStore) Query(ctx context.Context, ns string, vector []float32, topK int) ([]vectorstore.Match, error) {
	return nil, nil
}

func (m *memStore) Stats(ctx context.Context) (*vectorstore.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &vectorstore.Stats{Namespaces: make(map[string]int)}
	for ns, recs := range m.records {
		stats.Namespaces[ns] = len(recs)
		stats.TotalVectors += len(recs)
	}
	return stats, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) ids(ns string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.records[ns] {
		out = append(out, id)
	}
	return out
}

// countingLimiter records how often the gate was passed.
type countingLimiter struct {
	mu    sync.Mutex
	waits int
}

func (c *countingLimiter) Wait(ctx context.Context) error {
	c.mu.Lock()
	c.waits++
	c.mu.Unlock()
	return ctx.Err()
}

type harness struct {
	sourceDir string
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	store     *memStore
	manifest  *manifest.MemStore
	embedGate *countingLimiter
	orch      *Orchestrator
}

func newHarness(t *testing.T, batchSize int) *harness {
	t.Helper()

	h := &harness{
		sourceDir: t.TempDir(),
		extractor: &fakeExtractor{texts: map[string]string{}, fail: map[string]bool{}},
		embedder:  &fakeEmbedder{},
		store:     newMemStore(),
		manifest:  manifest.NewMemStore(),
		embedGate: &countingLimiter{},
	}

	tracker, err := manifest.NewTracker(h.manifest, nil)
	require.NoError(t, err)
	ch, err := chunker.New(500, 100, 50)
	require.NoError(t, err)

	h.orch, err = New(
		Config{BatchSize: batchSize},
		h.extractor,
		tracker,
		ch,
		h.embedder,
		namespace.NewCalculator(nil),
		h.store,
		h.embedGate,
		nil,
		nil,
	)
	require.NoError(t, err)
	return h
}

// addSource creates a source file with the given relative path and registers
// canned extraction text for it.
func (h *harness) addSource(t *testing.T, relPath, rawContent, text string) {
	t.Helper()
	full := filepath.Join(h.sourceDir, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(rawContent), 0o644))
	h.extractor.texts[filepath.Base(relPath)] = text
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, 32)
	text := strings.Repeat("abcdef", 200) // 1200 chars
	h.addSource(t, "math/clasa_0/Matematica/intro.pdf", "raw-bytes-v1", text)

	summary, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DocumentsDiscovered)
	assert.Equal(t, 1, summary.DocumentsProcessed)
	assert.Equal(t, 0, summary.DocumentsSkipped)
	assert.Equal(t, 0, summary.DocumentsFailed)
	assert.Equal(t, 3, summary.ChunksCreated)
	assert.Equal(t, 3, summary.EmbeddingsGenerated)
	assert.Equal(t, 3, summary.VectorsStored)
	assert.Equal(t, []string{"math_clasa_0_matematica"}, summary.Namespaces)

	ids := h.store.ids("math_clasa_0_matematica")
	assert.ElementsMatch(t, []string{
		VectorID("intro.pdf", 0),
		VectorID("intro.pdf", 1),
		VectorID("intro.pdf", 2),
	}, ids)

	// Metadata schema.
	recID := VectorID("intro.pdf", 0)
	rec := h.store.records["math_clasa_0_matematica"][recID]
	assert.Equal(t, "intro.pdf", rec.Metadata["source_file"])
	assert.Equal(t, "math/clasa_0/Matematica/intro.pdf", rec.Metadata["source_path"])
	assert.Equal(t, 3, rec.Metadata["total_pages"])
	assert.Equal(t, "math", rec.Metadata["school"])
	assert.Equal(t, "clasa_0", rec.Metadata["class"])
	assert.Equal(t, "Matematica", rec.Metadata["subject"])
	assert.Equal(t, 0, rec.Metadata["chunk_index"])
	assert.Equal(t, 500, rec.Metadata["chunk_size"])

	// Manifest recorded.
	entry, ok, err := h.manifest.Get("math/clasa_0/Matematica/intro.pdf")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, entry.SourceFingerprint)
}

func TestRun_UnchangedDocumentIsSkipped(t *testing.T) {
	h := newHarness(t, 32)
	h.addSource(t, "math/clasa_0/Matematica/intro.pdf", "raw-v1", strings.Repeat("x", 600))

	_, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)

	summary, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DocumentsProcessed)
	assert.Equal(t, 1, summary.DocumentsSkipped)
	assert.Equal(t, 0, summary.ChunksCreated)
}

func TestRun_ForceReprocesses(t *testing.T) {
	h := newHarness(t, 32)
	h.addSource(t, "math/clasa_0/Matematica/intro.pdf", "raw-v1", strings.Repeat("x", 600))

	_, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)

	summary, err := h.orch.Run(context.Background(), h.sourceDir, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentsProcessed)
	assert.Equal(t, 0, summary.DocumentsSkipped)
}

func TestRun_ChangedContentReprocessesWithSameIDs(t *testing.T) {
	h := newHarness(t, 32)
	rel := "math/clasa_0/Matematica/intro.pdf"
	h.addSource(t, rel, "raw-v1", strings.Repeat("abc", 400))

	_, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)
	firstIDs := h.store.ids("math_clasa_0_matematica")

	// Same length text, new raw bytes: reprocessed, IDs identical.
	h.addSource(t, rel, "raw-v2", strings.Repeat("abc", 400))
	summary, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DocumentsProcessed)
	assert.ElementsMatch(t, firstIDs, h.store.ids("math_clasa_0_matematica"))
}

func TestRun_AlignmentSurvivesPartialEmbeddingFailure(t *testing.T) {
	h := newHarness(t, 32)

	// Build text whose chunks carry distinct markers. Window size 500 with
	// step 400 means window i also covers the first 100 chars of segment
	// i+1, so markers sit at offset 100 inside each 400-char segment where
	// only their own window sees them. Poison chunks 1 and 3 (a
	// non-contiguous subset).
	var b strings.Builder
	for i := 0; i < 5; i++ {
		marker := fmt.Sprintf("MARK%d", i)
		if i == 1 || i == 3 {
			marker = fmt.Sprintf("POISON%d", i)
		}
		b.WriteString(strings.Repeat("x", 100))
		b.WriteString(marker)
		b.WriteString(strings.Repeat("x", 300-len(marker)))
	}
	h.embedder.poison = "POISON"
	h.addSource(t, "math/clasa_0/Matematica/intro.pdf", "raw", b.String())

	summary, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.ChunksCreated)
	assert.Equal(t, 2, summary.EmbeddingsFailed)
	assert.Equal(t, 3, summary.EmbeddingsGenerated)
	assert.Equal(t, 3, summary.VectorsStored)

	// Each surviving record's metadata belongs to its originating chunk:
	// the stored text preview starts with the chunk's own marker and the
	// ID encodes the chunk's own index.
	records := h.store.records["math_clasa_0_matematica"]
	require.Len(t, records, 3)
	for _, wantIdx := range []int{0, 2, 4} {
		rec, ok := records[VectorID("intro.pdf", wantIdx)]
		require.True(t, ok, "missing record for chunk %d", wantIdx)
		assert.True(t, strings.Contains(rec.Metadata["text"].(string), fmt.Sprintf("MARK%d", wantIdx)),
			"chunk %d metadata misaligned: %q", wantIdx, rec.Metadata["text"])
		assert.Equal(t, wantIdx, rec.Metadata["chunk_index"])
	}

	// Incomplete chunk set: the document must not enter the manifest.
	_, ok, err := h.manifest.Get("math/clasa_0/Matematica/intro.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, summary.DocumentsFailed)
	assert.Equal(t, 0, summary.DocumentsProcessed)
}

func TestRun_UpsertFailureIsFatalAndLeavesManifestUntouched(t *testing.T) {
	h := newHarness(t, 32)
	h.store.failAll = true
	h.addSource(t, "math/clasa_0/Matematica/intro.pdf", "raw", strings.Repeat("x", 600))

	_, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.ErrorIs(t, err, vectorstore.ErrUpsertFailed)

	all, err := h.manifest.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRun_IncompleteHierarchyRoutesToDefaultPartition(t *testing.T) {
	h := newHarness(t, 32)
	h.addSource(t, "loose.pdf", "raw", strings.Repeat("x", 600))

	summary, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{""}, summary.Namespaces)
	assert.NotEmpty(t, h.store.ids(""))
}

func TestRun_ExtractionFailureExcludesDocumentOnly(t *testing.T) {
	h := newHarness(t, 32)
	h.addSource(t, "math/clasa_0/Matematica/bad.pdf", "raw", "")
	h.extractor.fail["bad.pdf"] = true
	h.addSource(t, "math/clasa_0/Matematica/good.pdf", "raw", strings.Repeat("x", 600))

	summary, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DocumentsFailed)
	assert.Equal(t, 1, summary.DocumentsProcessed)
}

func TestRun_UpsertRespectsBatchSize(t *testing.T) {
	h := newHarness(t, 2)
	// 1200 chars -> 3 chunks, batch size 2 -> 2 upsert calls.
	h.addSource(t, "math/clasa_0/Matematica/intro.pdf", "raw", strings.Repeat("abcdef", 200))

	_, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, h.store.upserts)
}

func TestRun_EmbeddingGateIsConsultedPerChunk(t *testing.T) {
	h := newHarness(t, 32)
	h.addSource(t, "math/clasa_0/Matematica/intro.pdf", "raw", strings.Repeat("abcdef", 200))

	_, err := h.orch.Run(context.Background(), h.sourceDir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, h.embedGate.waits)
}

func TestVectorID_DeterministicAndContentIndependent(t *testing.T) {
	a := VectorID("intro.pdf", 0)
	b := VectorID("intro.pdf", 0)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "vec_"))
	assert.Len(t, a, 4+12)

	assert.NotEqual(t, VectorID("intro.pdf", 0), VectorID("intro.pdf", 1))
	assert.NotEqual(t, VectorID("intro.pdf", 0), VectorID("other.pdf", 0))
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(t, 32)
	tracker, err := manifest.NewTracker(manifest.NewMemStore(), nil)
	require.NoError(t, err)
	ch, err := chunker.New(500, 100, 50)
	require.NoError(t, err)

	_, err = New(Config{BatchSize: 0}, h.extractor, tracker, ch, h.embedder, namespace.NewCalculator(nil), h.store, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{BatchSize: 1}, nil, tracker, ch, h.embedder, namespace.NewCalculator(nil), h.store, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{BatchSize: 1}, h.extractor, tracker, ch, nil, namespace.NewCalculator(nil), h.store, nil, nil, nil)
	assert.Error(t, err)
}
