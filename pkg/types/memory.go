// Package types contains the shared data model for Engram: memories,
// relationships between memories, and the embedding index entries that
// mirror them.
package types

import "time"

// Memory is a stored content unit with optional metadata and an optional
// embedding vector kept in a side table.
type Memory struct {
	// ID is an opaque unique identifier (UUID-shaped; the contract only
	// requires global uniqueness).
	ID string `json:"id"`

	// Content is the memory text. Required.
	Content string `json:"content"`

	// Metadata is an arbitrary JSON-like document. Never nil after a read:
	// absent or unparseable metadata decodes to an empty map.
	Metadata map[string]interface{} `json:"metadata"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt advances on any content or metadata mutation. It never
	// moves backwards and is unaffected by embedding-only writes.
	UpdatedAt time.Time `json:"updated_at"`
}
