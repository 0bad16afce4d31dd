// Package vectorstore defines the interface for namespace-scoped vector
// storage and its backends.
package vectorstore

import (
	"context"
	"errors"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates empty or nil records.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrInvalidNamespace indicates a malformed namespace key.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrUpsertFailed indicates the store rejected an upsert. The pipeline
	// treats this as fatal: partial writes would desynchronize the manifest
	// from stored state.
	ErrUpsertFailed = errors.New("vector upsert failed")

	// ErrQueryFailed indicates a similarity query failure.
	ErrQueryFailed = errors.New("vector query failed")
)

// Record is one vector with its identity and metadata.
type Record struct {
	// ID is the deterministic record identifier. Upserting the same ID
	// overwrites the stored record.
	ID string

	// Vector is the embedding, fixed dimensionality per index.
	Vector []float32

	// Metadata carries the truncated text preview plus inherited hierarchy
	// and chunk fields.
	Metadata map[string]any
}

// Match is one similarity query result.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Stats describes index contents.
type Stats struct {
	// TotalVectors is the vector count across all partitions.
	TotalVectors int

	// Namespaces maps partition key to vector count. The default partition
	// appears under the empty key.
	Namespaces map[string]int
}

// Store is the namespace-scoped vector storage capability.
//
// The empty namespace addresses the single shared default partition. Upserts
// are idempotent per record ID.
type Store interface {
	// Upsert writes records into the given namespace.
	Upsert(ctx context.Context, namespace string, records []Record) error

	// Query returns up to topK matches from the given namespace, ordered by
	// descending score. Querying a namespace that holds no vectors returns
	// an empty result, not an error.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)

	// Stats returns index statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases resources held by the store.
	Close() error
}

var namespacePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidateNamespace checks a partition key: empty addresses the default
// partition, anything else must be lowercase alphanumeric with underscores.
func ValidateNamespace(ns string) error {
	if ns == "" {
		return nil
	}
	if !namespacePattern.MatchString(ns) {
		return ErrInvalidNamespace
	}
	return nil
}
