package types

import "time"

// Relationship is a directed, typed, weighted edge between two memories.
// Relationships carry no updated_at: only strength and metadata mutate in
// place after creation.
type Relationship struct {
	ID string `json:"id"`

	// FromMemoryID and ToMemoryID are the ordered endpoints. Endpoint
	// existence is not validated at creation time; deleting either endpoint
	// cascades to this edge.
	FromMemoryID string `json:"from_memory_id"`
	ToMemoryID   string `json:"to_memory_id"`

	// Type is a free-form label such as "references" or "contradicts".
	Type string `json:"relationship_type"`

	// Strength is conventionally in [0,1] but not enforced. Defaults to 1.0.
	Strength float64 `json:"strength"`

	Metadata map[string]interface{} `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

// OtherEndpoint returns the endpoint of r that is not memoryID. When
// memoryID is neither endpoint the empty string is returned.
func (r *Relationship) OtherEndpoint(memoryID string) string {
	switch memoryID {
	case r.FromMemoryID:
		return r.ToMemoryID
	case r.ToMemoryID:
		return r.FromMemoryID
	}
	return ""
}

// RelationshipDirection selects which endpoint a relationship query matches
// against when filtering by memory ID.
type RelationshipDirection string

const (
	// DirectionFrom matches relationships where the memory is the source.
	DirectionFrom RelationshipDirection = "from"

	// DirectionTo matches relationships where the memory is the target.
	DirectionTo RelationshipDirection = "to"

	// DirectionBoth matches relationships where the memory is either
	// endpoint. This is the default.
	DirectionBoth RelationshipDirection = "both"
)

// Valid reports whether d is one of the three recognised directions.
func (d RelationshipDirection) Valid() bool {
	switch d {
	case DirectionFrom, DirectionTo, DirectionBoth:
		return true
	}
	return false
}
