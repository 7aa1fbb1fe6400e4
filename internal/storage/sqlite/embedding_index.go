package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/engramhq/engram/internal/storage"
)

// nearestMaxCandidates caps the number of embeddings loaded into memory
// during a nearest-neighbour query. Candidates are selected in recency order
// (newest memory first) so recently created memories are always considered.
// For typical personal-memory datasets (< 10k memories) this limit is never
// hit; larger deployments should use the PostgreSQL backend with pgvector.
const nearestMaxCandidates = 10_000

// HasVectorIndex reports whether nearest-neighbour queries are available.
// The SQLite backend always carries its embeddings table, so the capability
// is unconditionally present once the store opened successfully.
func (s *Store) HasVectorIndex() bool {
	return s.db != nil
}

// UpsertEmbedding stores or overwrites the embedding vector for a memory.
// The vector is serialised as little-endian float64 bytes.
func (s *Store) UpsertEmbedding(ctx context.Context, memoryID string, vector []float64) error {
	if memoryID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, vector, dimension, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(memory_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			updated_at = CURRENT_TIMESTAMP`,
		memoryID, serializeVector(vector), len(vector),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert embedding: %w", err)
	}

	return nil
}

// DeleteEmbedding removes the embedding row for a memory. Removing an
// absent embedding is a no-op.
func (s *Store) DeleteEmbedding(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE memory_id = ?", memoryID); err != nil {
		return fmt.Errorf("sqlite: failed to delete embedding: %w", err)
	}

	return nil
}

// NearestByEmbedding performs a linear cosine-distance scan over the stored
// embeddings and returns up to limit neighbours within maxDistance, ordered
// by distance ascending. Rows whose stored vector cannot be decoded or whose
// dimensionality differs from the query are skipped.
func (s *Store) NearestByEmbedding(ctx context.Context, query []float64, maxDistance float64, limit int) ([]storage.Neighbor, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.memory_id, e.vector, e.dimension
		FROM embeddings e
		JOIN memories m ON m.id = e.memory_id
		ORDER BY m.created_at DESC
		LIMIT ?`, nearestMaxCandidates,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load embeddings: %w", err)
	}
	defer rows.Close()

	var neighbors []storage.Neighbor

	for rows.Next() {
		var memID string
		var blob []byte
		var dim int
		if err := rows.Scan(&memID, &blob, &dim); err != nil {
			continue
		}

		vector, err := deserializeVector(blob, dim)
		if err != nil || len(vector) != len(query) {
			continue
		}

		distance := 1 - cosineSimilarity(query, vector)
		if distance > maxDistance {
			continue
		}

		neighbors = append(neighbors, storage.Neighbor{MemoryID: memID, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating embeddings: %w", err)
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})

	if len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}

	return neighbors, nil
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 if either vector has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// serializeVector converts a float64 slice to little-endian bytes.
func serializeVector(vector []float64) []byte {
	buf := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeVector converts little-endian bytes back to a float64 slice,
// validating the buffer against the recorded dimension.
func deserializeVector(buf []byte, dimension int) ([]float64, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*8 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*8, len(buf))
	}

	vector := make([]float64, dimension)
	for i := 0; i < dimension; i++ {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vector, nil
}
