package storage

import (
	"context"

	"github.com/engramhq/engram/pkg/types"
)

// Store is the full persistence contract the memory service depends on.
// Both the SQLite and PostgreSQL backends implement it.
//
// Lookup semantics are uniform across implementations: reads on a missing ID
// return ErrNotFound, while updates and deletes on a missing ID report
// (false, nil) so callers can treat absence as a no-op rather than a failure.
type Store interface {
	MemoryStore
	RelationshipStore
	EmbeddingIndex

	// Close releases the underlying database handle.
	Close() error
}

// MemoryStore persists memory rows.
type MemoryStore interface {
	// CreateMemory inserts a new memory row. The memory's ID must already be
	// populated by the caller; zero timestamps are backfilled with now.
	CreateMemory(ctx context.Context, m *types.Memory) error

	// GetMemory returns the memory with the given ID, or ErrNotFound.
	GetMemory(ctx context.Context, id string) (*types.Memory, error)

	// UpdateMemory applies a partial update and advances updated_at.
	// Returns false when no row matched the ID.
	UpdateMemory(ctx context.Context, id string, upd MemoryUpdate) (bool, error)

	// DeleteMemory removes the memory row along with its embedding and any
	// relationships referencing it as either endpoint, in one transaction.
	// Returns false when no row matched the ID.
	DeleteMemory(ctx context.Context, id string) (bool, error)

	// SearchByContent performs a case-sensitive substring scan over content,
	// ordered by created_at descending, capped at limit. It is the fallback
	// path used when semantic search is unavailable.
	SearchByContent(ctx context.Context, substring string, limit int) ([]types.Memory, error)

	// GetMemoriesByIDs fetches the memories for the given IDs in one query.
	// Missing IDs are silently omitted from the result.
	GetMemoriesByIDs(ctx context.Context, ids []string) ([]types.Memory, error)
}

// RelationshipStore persists typed, weighted, directed edges between memories.
type RelationshipStore interface {
	// CreateRelationship inserts a new edge. Endpoint existence is not
	// validated; dangling edges are permitted until a cascade removes them.
	CreateRelationship(ctx context.Context, r *types.Relationship) error

	// QueryRelationships returns edges matching the filter, ordered by
	// strength descending then created_at descending.
	QueryRelationships(ctx context.Context, f RelationshipFilter) ([]types.Relationship, error)

	// UpdateRelationship applies a partial update. Relationships have no
	// updated_at; only strength and metadata mutate. Returns false when no
	// row matched the ID.
	UpdateRelationship(ctx context.Context, id string, upd RelationshipUpdate) (bool, error)

	// DeleteRelationship removes the edge. Returns false when no row
	// matched the ID.
	DeleteRelationship(ctx context.Context, id string) (bool, error)
}

// EmbeddingIndex is the optional vector side table keyed by memory ID.
// Its availability is a capability of the backend, not a per-call condition.
type EmbeddingIndex interface {
	// HasVectorIndex reports whether the vector index initialised and
	// NearestByEmbedding may be called.
	HasVectorIndex() bool

	// UpsertEmbedding stores or overwrites the embedding for a memory.
	UpsertEmbedding(ctx context.Context, memoryID string, vector []float64) error

	// DeleteEmbedding removes the embedding row. Deleting a missing
	// embedding is a no-op, not an error.
	DeleteEmbedding(ctx context.Context, memoryID string) error

	// NearestByEmbedding returns up to limit memory IDs whose embeddings lie
	// within maxDistance cosine distance of the query vector, ordered by
	// distance ascending.
	NearestByEmbedding(ctx context.Context, query []float64, maxDistance float64, limit int) ([]Neighbor, error)
}
