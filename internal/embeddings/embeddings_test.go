package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/config"
)

func testConfig(baseURL string) Config {
	return Config{
		AccountID: "acct-1",
		APIToken:  config.Secret("tok"),
		Model:     "@cf/baai/bge-base-en-v1.5",
		BaseURL:   baseURL,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig("").Validate())

	cfg := testConfig("")
	cfg.AccountID = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = testConfig("")
	cfg.APIToken = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = testConfig("")
	cfg.Model = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestEmbedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acct-1/ai/run/@cf/baai/bge-base-en-v1.5", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req cfRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Text)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"data": [][]float32{{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	svc, err := NewService(testConfig(srv.URL))
	require.NoError(t, err)

	vec, err := svc.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedQuery_EmptyText(t *testing.T) {
	svc, err := NewService(testConfig("http://unused"))
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedQuery_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc, err := NewService(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedQuery_EnvelopeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"errors":  []map[string]any{{"code": 10000, "message": "invalid token"}},
		})
	}))
	defer srv.Close()

	svc, err := NewService(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = svc.EmbedQuery(context.Background(), "hello")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestEmbedDocuments(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"data": [][]float32{{float32(calls)}}},
		})
	}))
	defer srv.Close()

	svc, err := NewService(testConfig(srv.URL))
	require.NoError(t, err)

	vecs, err := svc.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []float32{1}, vecs[0])
	assert.Equal(t, []float32{3}, vecs[2])

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}
