package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/pkg/types"
)

// Ensure *Store satisfies the full storage contract at compile time.
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using PostgreSQL, with pgvector-backed
// nearest-neighbour search when the extension is installed.
type Store struct {
	db              *sql.DB
	vectorAvailable bool
	dimension       int
}

// NewStore connects to PostgreSQL, applies the schema, and probes for the
// pgvector extension. A missing extension is not an error: the store comes
// up without the vector index capability and semantic search degrades to the
// caller's fallback path.
func NewStore(dsn string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", storage.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to create schema: %w", err)
	}

	s := &Store{db: db, dimension: dimension}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension unavailable, vector search disabled: %v", err)
		return s, nil
	}

	if _, err := db.Exec(fmt.Sprintf(vectorSchema, dimension)); err != nil {
		log.Printf("postgres: failed to create embeddings table, vector search disabled: %v", err)
		return s, nil
	}

	s.vectorAvailable = true
	return s, nil
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Memories
// ---------------------------------------------------------------------------

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
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Content, metadataJSON, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create memory: %w", err)
	}

	return nil
}

// GetMemory retrieves a memory by ID, or storage.ErrNotFound.
func (s *Store) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	var m types.Memory
	var metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, content, metadata, created_at, updated_at
		FROM memories
		WHERE id = $1`, id,
	).Scan(&m.ID, &m.Content, &metadataJSON, &m.CreatedAt, &m.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get memory: %w", err)
	}

	m.Metadata = unmarshalMetadata(metadataJSON)
	return &m, nil
}

// UpdateMemory applies a partial update and advances updated_at. Returns
// false when no row matched.
func (s *Store) UpdateMemory(ctx context.Context, id string, upd storage.MemoryUpdate) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	if upd.IsZero() {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE id = $1", id).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("postgres: failed to check existence: %w", err)
		}
		return count > 0, nil
	}

	sets := []string{"updated_at = $1"}
	args := []interface{}{time.Now().UTC()}

	if upd.Content != nil {
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)+1))
		args = append(args, *upd.Content)
	}
	if upd.Metadata != nil {
		metadataJSON, err := marshalMetadata(upd.Metadata)
		if err != nil {
			return false, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		sets = append(sets, fmt.Sprintf("metadata = $%d", len(args)+1))
		args = append(args, metadataJSON)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to update memory: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}

	return n > 0, nil
}

// DeleteMemory removes a memory row, cascading to relationships and the
// embedding row inside one transaction. Returns false when no memory row
// matched.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM relationships WHERE from_memory_id = $1 OR to_memory_id = $1", id); err != nil {
		return false, fmt.Errorf("postgres: failed to cascade relationships: %w", err)
	}

	if s.vectorAvailable {
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE memory_id = $1", id); err != nil {
			return false, fmt.Errorf("postgres: failed to cascade embedding: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM memories WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to delete memory: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("postgres: failed to commit delete: %w", err)
	}

	return n > 0, nil
}

// SearchByContent performs a case-sensitive substring scan over content,
// newest first.
func (s *Store) SearchByContent(ctx context.Context, substring string, limit int) ([]types.Memory, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, created_at, updated_at
		FROM memories
		WHERE strpos(content, $1) > 0
		ORDER BY created_at DESC
		LIMIT $2`, substring, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: SearchByContent: %w", err)
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

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata, created_at, updated_at
		FROM memories
		WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: GetMemoriesByIDs: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// ---------------------------------------------------------------------------
// Relationships
// ---------------------------------------------------------------------------

// CreateRelationship inserts a new edge without validating endpoint existence.
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.FromMemoryID, r.ToMemoryID, r.Type, r.Strength, metadataJSON, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create relationship: %w", err)
	}

	return nil
}

// QueryRelationships returns edges matching the filter, ordered by strength
// descending then created_at descending.
func (s *Store) QueryRelationships(ctx context.Context, f storage.RelationshipFilter) ([]types.Relationship, error) {
	f.Normalize()

	var conditions []string
	var args []interface{}

	next := func() int { return len(args) + 1 }

	if f.MemoryID != "" {
		switch f.Direction {
		case types.DirectionFrom:
			conditions = append(conditions, fmt.Sprintf("from_memory_id = $%d", next()))
			args = append(args, f.MemoryID)
		case types.DirectionTo:
			conditions = append(conditions, fmt.Sprintf("to_memory_id = $%d", next()))
			args = append(args, f.MemoryID)
		default:
			n := next()
			conditions = append(conditions, fmt.Sprintf("(from_memory_id = $%d OR to_memory_id = $%d)", n, n))
			args = append(args, f.MemoryID)
		}
	}

	if f.Type != "" {
		conditions = append(conditions, fmt.Sprintf("relationship_type = $%d", next()))
		args = append(args, f.Type)
	}

	if f.MinStrength > 0 {
		conditions = append(conditions, fmt.Sprintf("strength >= $%d", next()))
		args = append(args, f.MinStrength)
	}

	query := `
		SELECT id, from_memory_id, to_memory_id, relationship_type, strength, metadata, created_at
		FROM relationships`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY strength DESC, created_at DESC LIMIT $%d", next())
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: QueryRelationships: %w", err)
	}
	defer rows.Close()

	var rels []types.Relationship
	for rows.Next() {
		var r types.Relationship
		var metadataJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.FromMemoryID, &r.ToMemoryID, &r.Type, &r.Strength, &metadataJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan relationship row: %w", err)
		}
		r.Metadata = unmarshalMetadata(metadataJSON)
		rels = append(rels, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows error: %w", err)
	}

	return rels, nil
}

// UpdateRelationship applies a partial update. Returns false when no row
// matched.
func (s *Store) UpdateRelationship(ctx context.Context, id string, upd storage.RelationshipUpdate) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}

	if upd.IsZero() {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM relationships WHERE id = $1", id).Scan(&count)
		if err != nil {
			return false, fmt.Errorf("postgres: failed to check existence: %w", err)
		}
		return count > 0, nil
	}

	var sets []string
	var args []interface{}

	if upd.Strength != nil {
		sets = append(sets, fmt.Sprintf("strength = $%d", len(args)+1))
		args = append(args, *upd.Strength)
	}
	if upd.Metadata != nil {
		metadataJSON, err := marshalMetadata(upd.Metadata)
		if err != nil {
			return false, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		sets = append(sets, fmt.Sprintf("metadata = $%d", len(args)+1))
		args = append(args, metadataJSON)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE relationships SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to update relationship: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}

	return n > 0, nil
}

// DeleteRelationship removes an edge. Returns false when no row matched.
func (s *Store) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM relationships WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to delete relationship: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}

	return n > 0, nil
}

// ---------------------------------------------------------------------------
// Embedding index (pgvector)
// ---------------------------------------------------------------------------

// HasVectorIndex reports whether the pgvector extension initialised.
func (s *Store) HasVectorIndex() bool {
	return s.vectorAvailable
}

// UpsertEmbedding stores or overwrites the embedding for a memory in the
// pgvector column.
func (s *Store) UpsertEmbedding(ctx context.Context, memoryID string, vector []float64) error {
	if !s.vectorAvailable {
		return storage.ErrVectorIndexUnavailable
	}
	if memoryID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: embedding length (%d) does not match dimension (%d)",
			storage.ErrInvalidInput, len(vector), s.dimension)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, embedding, created_at, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(memory_id) DO UPDATE SET
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP`,
		memoryID, toVector(vector),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert embedding: %w", err)
	}

	return nil
}

// DeleteEmbedding removes the embedding row for a memory.
func (s *Store) DeleteEmbedding(ctx context.Context, memoryID string) error {
	if !s.vectorAvailable {
		return storage.ErrVectorIndexUnavailable
	}
	if memoryID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE memory_id = $1", memoryID); err != nil {
		return fmt.Errorf("postgres: failed to delete embedding: %w", err)
	}

	return nil
}

// NearestByEmbedding runs a cosine-distance query against the pgvector
// column. The <=> operator returns cosine distance directly, so the bound
// and ordering map one-to-one onto the SQL.
func (s *Store) NearestByEmbedding(ctx context.Context, query []float64, maxDistance float64, limit int) ([]storage.Neighbor, error) {
	if !s.vectorAvailable {
		return nil, storage.ErrVectorIndexUnavailable
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = 10
	}

	vec := toVector(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, embedding <=> $1 AS distance
		FROM embeddings
		WHERE embedding <=> $1 <= $2
		ORDER BY distance ASC
		LIMIT $3`, vec, maxDistance, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: NearestByEmbedding: %w", err)
	}
	defer rows.Close()

	var neighbors []storage.Neighbor
	for rows.Next() {
		var n storage.Neighbor
		if err := rows.Scan(&n.MemoryID, &n.Distance); err != nil {
			return nil, fmt.Errorf("postgres: scan neighbor row: %w", err)
		}
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows error: %w", err)
	}

	return neighbors, nil
}

// toVector converts a float64 slice to a pgvector value (pgvector stores
// float32 components).
func toVector(v []float64) pgvector.Vector {
	f32 := make([]float32, len(v))
	for i, x := range v {
		f32[i] = float32(x)
	}
	return pgvector.NewVector(f32)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// marshalMetadata serialises a metadata document to JSON. A nil map
// serialises to the '{}' default.
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

// unmarshalMetadata decodes the metadata column, defaulting to an empty map
// on absence or parse failure.
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
