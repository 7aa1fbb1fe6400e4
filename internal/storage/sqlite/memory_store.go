package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/pkg/types"
)

// CreateMemory inserts a new memory row.
func (s *Store) CreateMemory(ctx context.Context, m *types.Memory) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if m.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}

	metadataJSON, err := marshalMetadata(m.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Content, metadataJSON, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create memory: %w", err)
	}

	return nil
}

// GetMemory retrieves a memory by ID. Returns storage.ErrNotFound when no
// row matches.
func (s *Store) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	var m types.Memory
	var metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, content, metadata, created_at, updated_at
		FROM memories
		WHERE id = ?`, id,
	).Scan(&m.ID, &m.Content, &metadataJSON, &m.CreatedAt, &m.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}

	m.Metadata = unmarshalMetadata(metadataJSON)
	return &m, nil
}

// UpdateMemory applies a partial update to a memory and advances updated_at.
// A zero update on an existing row still reports true without touching it.
func (s *Store) UpdateMemory(ctx context.Context, id string, upd storage.MemoryUpdate) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	if upd.IsZero() {
		// Existence check only: no fields to change.
		return s.memoryExists(ctx, id)
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if upd.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *upd.Content)
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
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(sets, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to update memory: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	return n > 0, nil
}

// DeleteMemory removes a memory row together with every relationship that
// references it as either endpoint and its embedding row. The cascade runs
// inside one transaction so no dangling relationship can ever be observed.
// Returns false when no memory row matched.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM relationships WHERE from_memory_id = ? OR to_memory_id = ?", id, id); err != nil {
		return false, fmt.Errorf("sqlite: failed to cascade relationships: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE memory_id = ?", id); err != nil {
		return false, fmt.Errorf("sqlite: failed to cascade embedding: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to delete memory: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: failed to commit delete: %w", err)
	}

	return n > 0, nil
}

// SearchByContent performs a case-sensitive substring scan over content,
// newest first. SQLite's LIKE is case-insensitive for ASCII, so instr() is
// used instead to keep the comparison exact.
func (s *Store) SearchByContent(ctx context.Context, substring string, limit int) ([]types.Memory, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, created_at, updated_at
		FROM memories
		WHERE instr(content, ?) > 0
		ORDER BY created_at DESC
		LIMIT ?`, substring, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SearchByContent: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// GetMemoriesByIDs fetches memories for the given IDs in one query. Missing
// IDs are silently omitted.
func (s *Store) GetMemoriesByIDs(ctx context.Context, ids []string) ([]types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, created_at, updated_at
		FROM memories
		WHERE id IN (%s)`, buildInClause(len(ids)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetMemoriesByIDs: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// memoryExists reports whether a memory row with the given ID exists.
func (s *Store) memoryExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check existence: %w", err)
	}
	return count > 0, nil
}

// scanMemories reads all rows of a (id, content, metadata, created_at,
// updated_at) query into a slice.
func scanMemories(rows *sql.Rows) ([]types.Memory, error) {
	var memories []types.Memory

	for rows.Next() {
		var m types.Memory
		var metadataJSON sql.NullString

		if err := rows.Scan(&m.ID, &m.Content, &metadataJSON, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}

		m.Metadata = unmarshalMetadata(metadataJSON)
		memories = append(memories, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return memories, nil
}

// marshalMetadata serialises a metadata document to JSON text. A nil map
// serialises to the '{}' default so the column never holds SQL NULL for
// freshly written rows.
func marshalMetadata(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalMetadata decodes the metadata column. Absent or unparseable
// documents decode to an empty map: metadata corruption must never make a
// memory unreadable.
func unmarshalMetadata(ns sql.NullString) map[string]interface{} {
	out := make(map[string]interface{})
	if !ns.Valid || ns.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return make(map[string]interface{})
	}
	return out
}

// buildInClause returns a comma-separated string of n "?" placeholders.
func buildInClause(n int) string {
	if n == 0 {
		return ""
	}
	clause := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			clause = append(clause, ',')
		}
		clause = append(clause, '?')
	}
	return string(clause)
}
