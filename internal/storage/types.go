// Package storage defines the persistence contracts for Engram: memory and
// relationship CRUD plus the optional embedding index used for
// nearest-neighbour search.
package storage

import (
	"errors"

	"github.com/engramhq/engram/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVectorIndexUnavailable is returned by NearestByEmbedding when the
	// vector index subsystem did not initialise. Callers should consult
	// HasVectorIndex instead of probing for this error per call.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")
)

// MemoryUpdate describes a partial update to a memory. Nil fields are left
// untouched; a non-nil Metadata replaces the stored document wholesale.
type MemoryUpdate struct {
	Content  *string
	Metadata map[string]interface{}
}

// IsZero reports whether the update carries no changes.
func (u MemoryUpdate) IsZero() bool {
	return u.Content == nil && u.Metadata == nil
}

// RelationshipUpdate describes a partial update to a relationship.
type RelationshipUpdate struct {
	Strength *float64
	Metadata map[string]interface{}
}

// IsZero reports whether the update carries no changes.
func (u RelationshipUpdate) IsZero() bool {
	return u.Strength == nil && u.Metadata == nil
}

// RelationshipFilter narrows a relationship query. Zero values mean
// "no constraint" except Direction, which defaults to both endpoints.
type RelationshipFilter struct {
	// MemoryID restricts results to relationships touching this memory.
	MemoryID string

	// Type is an exact match on relationship_type when non-empty.
	Type string

	// Direction selects which endpoint MemoryID must match. Ignored when
	// MemoryID is empty.
	Direction types.RelationshipDirection

	// MinStrength is an inclusive lower bound on strength.
	MinStrength float64

	// Limit caps the number of results (default 100).
	Limit int
}

// Normalize applies defaults and clamps out-of-range values.
func (f *RelationshipFilter) Normalize() {
	if !f.Direction.Valid() {
		f.Direction = types.DirectionBoth
	}
	if f.MinStrength < 0 {
		f.MinStrength = 0
	}
	if f.Limit < 1 {
		f.Limit = 100
	}
}

// Neighbor is a single nearest-neighbour search hit.
type Neighbor struct {
	// MemoryID identifies the matched memory.
	MemoryID string

	// Distance is the cosine distance (1 - cosine similarity) between the
	// query vector and the stored embedding. 0 is identical, 2 is opposite.
	Distance float64
}
