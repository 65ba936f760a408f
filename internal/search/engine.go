// Package search defines the narrow interface to the backing index engine and
// its implementations. The gateway consumes the engine as a black box: it
// upserts documents by id, runs boolean-OR term queries, and renormalizes the
// engine's relevance scores; it never implements ranking of its own.
package search

import (
	"context"
	"encoding/json"
)

// Term is one exact-match clause against a keyword field.
type Term struct {
	Field string
	Value string
}

// Query is a boolean query. Should clauses are OR-combined and contribute to
// the relevance score (a document must match at least one when any are
// present). Filter clauses must all match and never contribute to scoring.
type Query struct {
	Should []Term
	Filter []Term
}

// Document is an indexed unit: exact-match keyword fields plus an opaque
// source payload returned verbatim with hits.
type Document struct {
	Keywords map[string][]string
	Source   json.RawMessage
}

// Hit is one search result, in engine rank order.
type Hit struct {
	ID       string
	Score    float64
	Keywords map[string][]string
	Source   json.RawMessage
}

// Engine is the index/storage backend. Upsert replaces any previous document
// with the same id (no partial update) and creates the index on first use.
// Freshly written documents are only guaranteed visible after Refresh.
// Searching or counting a nonexistent index yields empty results, not an
// error.
type Engine interface {
	Exists(ctx context.Context, index string) (bool, error)
	Create(ctx context.Context, index string) error
	Upsert(ctx context.Context, index, id string, doc Document) error
	Delete(ctx context.Context, index, id string) error
	Refresh(ctx context.Context, index string) error
	Count(ctx context.Context, index string) (int64, error)
	// Search returns up to limit hits ordered by descending relevance;
	// limit <= 0 means unbounded.
	Search(ctx context.Context, index string, q Query, limit int) ([]Hit, error)
}

func (q Query) matchesFilters(keywords map[string][]string) bool {
	for _, f := range q.Filter {
		if !contains(keywords[f.Field], f.Value) {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
