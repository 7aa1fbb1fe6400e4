package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/pkg/types"
)

// CreateRelationship inserts a new edge. Endpoint existence is deliberately
// not validated: an edge may reference memories that do not (yet) exist, and
// is only swept away when an existing endpoint is deleted.
func (s *Store) CreateRelationship(ctx context.Context, r *types.Relationship) error {
	if r == nil {
		return storage.ErrInvalidInput
	}
	if r.ID == "" {
		return fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}
	if r.FromMemoryID == "" || r.ToMemoryID == "" {
		return fmt.Errorf("%w: both endpoints are required", storage.ErrInvalidInput)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: relationship type is required", storage.ErrInvalidInput)
	}

	metadataJSON, err := marshalMetadata(r.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, from_memory_id, to_memory_id, relationship_type, strength, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromMemoryID, r.ToMemoryID, r.Type, r.Strength, metadataJSON, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create relationship: %w", err)
	}

	return nil
}

// QueryRelationships returns edges matching the filter, ordered by strength
// descending with created_at descending as the tie-break.
func (s *Store) QueryRelationships(ctx context.Context, f storage.RelationshipFilter) ([]types.Relationship, error) {
	f.Normalize()

	var conditions []string
	var args []interface{}

	if f.MemoryID != "" {
		switch f.Direction {
		case types.DirectionFrom:
			conditions = append(conditions, "from_memory_id = ?")
			args = append(args, f.MemoryID)
		case types.DirectionTo:
			conditions = append(conditions, "to_memory_id = ?")
			args = append(args, f.MemoryID)
		default:
			conditions = append(conditions, "(from_memory_id = ? OR to_memory_id = ?)")
			args = append(args, f.MemoryID, f.MemoryID)
		}
	}

	if f.Type != "" {
		conditions = append(conditions, "relationship_type = ?")
		args = append(args, f.Type)
	}

	if f.MinStrength > 0 {
		conditions = append(conditions, "strength >= ?")
		args = append(args, f.MinStrength)
	}

	query := `
		SELECT id, from_memory_id, to_memory_id, relationship_type, strength, metadata, created_at
		FROM relationships`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY strength DESC, created_at DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: QueryRelationships: %w", err)
	}
	defer rows.Close()

	return scanRelationships(rows)
}

// UpdateRelationship applies a partial update. Relationships track no
// updated_at column. Returns false when no row matched.
func (s *Store) UpdateRelationship(ctx context.Context, id string, upd storage.RelationshipUpdate) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}

	if upd.IsZero() {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relationships WHERE id = ?", id).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("sqlite: failed to check existence: %w", err)
		}
		return count > 0, nil
	}

	var sets []string
	var args []interface{}

	if upd.Strength != nil {
		sets = append(sets, "strength = ?")
		args = append(args, *upd.Strength)
	}
	if upd.Metadata != nil {
		metadataJSON, err := marshalMetadata(upd.Metadata)
		if err != nil {
			return false, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, metadataJSON)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE relationships SET %s WHERE id = ?", strings.Join(sets, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to update relationship: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	return n > 0, nil
}

// DeleteRelationship removes an edge. Returns false when no row matched.
func (s *Store) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM relationships WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to delete relationship: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	return n > 0, nil
}

// scanRelationships reads all rows of a relationship query into a slice.
func scanRelationships(rows *sql.Rows) ([]types.Relationship, error) {
	var rels []types.Relationship

	for rows.Next() {
		var r types.Relationship
		var metadataJSON sql.NullString

		if err := rows.Scan(&r.ID, &r.FromMemoryID, &r.ToMemoryID, &r.Type, &r.Strength, &metadataJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship row: %w", err)
		}

		r.Metadata = unmarshalMetadata(metadataJSON)
		rels = append(rels, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rels, nil
}
