// Package memory implements the application-level semantics on top of the
// storage layer: embedding-aware memory CRUD, semantic search with substring
// fallback, relationship management, and graph traversal.
package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/engramhq/engram/internal/embedding"
	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/pkg/types"
)

// Defaults applied when a caller omits optional parameters.
const (
	defaultSearchLimit     = 10
	defaultSearchThreshold = 0.5
	defaultTraversalDepth  = 2
	defaultStrength        = 1.0

	// traversalEdgeLimit bounds the per-node relationship fetch during BFS.
	// Far above the default query limit so traversal sees every edge at the
	// expected graph sizes.
	traversalEdgeLimit = 10_000
)

// SearchResult couples a memory with its similarity score when the vector
// path produced it. Similarity is nil for substring-fallback results.
type SearchResult struct {
	Memory     types.Memory
	Similarity *float64
}

// ConnectedMemory is a memory discovered by graph traversal, annotated with
// its hop distance from the start node.
type ConnectedMemory struct {
	Memory types.Memory
	Depth  int
}

// Service wires the storage backend and the embedding generator into the
// operations exposed over the API surface.
type Service struct {
	store     storage.Store
	generator embedding.Generator
	logger    *log.Logger
}

// NewService creates a memory service. The logger defaults to the standard
// logger when nil.
func NewService(store storage.Store, generator embedding.Generator, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     store,
		generator: generator,
		logger:    logger,
	}
}

// AddMemory creates a memory with a generated ID. Embedding generation
// failure fails the whole operation; failure to index an embedding that was
// generated successfully does not (the memory row is kept and the miss is
// logged, since substring search still covers it).
func (s *Service) AddMemory(ctx context.Context, content string, metadata map[string]interface{}) (*types.Memory, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}

	vector, err := s.generator.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	now := time.Now().UTC()
	m := &types.Memory{
		ID:        uuid.NewString(),
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateMemory(ctx, m); err != nil {
		return nil, err
	}

	if err := s.store.UpsertEmbedding(ctx, m.ID, vector); err != nil {
		s.logger.Printf("memory %s created but embedding index write failed: %v", m.ID, err)
	}

	return m, nil
}

// GetMemory returns the memory with the given ID, or (nil, nil) when it does
// not exist.
func (s *Service) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	m, err := s.store.GetMemory(ctx, id)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	return m, err
}

// UpdateMemory applies a partial update. Updating content regenerates the
// embedding; an embedding failure aborts the update so the index never
// lags a successful content change because of a swallowed error. Returns
// false when the memory does not exist.
func (s *Service) UpdateMemory(ctx context.Context, id string, upd storage.MemoryUpdate) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	var vector []float64
	if upd.Content != nil {
		v, err := s.generator.Embed(ctx, *upd.Content)
		if err != nil {
			return false, fmt.Errorf("failed to generate embedding: %w", err)
		}
		vector = v
	}

	updated, err := s.store.UpdateMemory(ctx, id, upd)
	if err != nil || !updated {
		return updated, err
	}

	if vector != nil {
		if err := s.store.UpsertEmbedding(ctx, id, vector); err != nil {
			s.logger.Printf("memory %s updated but embedding index write failed: %v", id, err)
		}
	}

	return true, nil
}

// DeleteMemory removes a memory, its relationships, and its embedding.
// Returns false when the memory does not exist.
func (s *Service) DeleteMemory(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteMemory(ctx, id)
}

// SearchMemories performs semantic search over memory content. The vector
// path embeds the query and asks the index for neighbours within
// 1 - threshold cosine distance; if any step of that path fails (no index,
// embedding error, index error), the search degrades to a case-sensitive
// substring scan ordered newest first. Fallback results carry no similarity
// score.
func (s *Service) SearchMemories(ctx context.Context, query string, limit int, threshold float64) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = defaultSearchLimit
	}
	if threshold <= 0 || threshold > 1 {
		threshold = defaultSearchThreshold
	}

	if results, err := s.searchByVector(ctx, query, limit, threshold); err == nil {
		return results, nil
	} else {
		s.logger.Printf("vector search failed, falling back to substring scan: %v", err)
	}

	memories, err := s.store.SearchByContent(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(memories))
	for i, m := range memories {
		results[i] = SearchResult{Memory: m}
	}
	return results, nil
}

// searchByVector runs the embedding-index path of SearchMemories.
func (s *Service) searchByVector(ctx context.Context, query string, limit int, threshold float64) ([]SearchResult, error) {
	if !s.store.HasVectorIndex() {
		return nil, storage.ErrVectorIndexUnavailable
	}

	vector, err := s.generator.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Cosine distance is 1 - similarity, so the similarity threshold maps
	// directly to a distance bound.
	neighbors, err := s.store.NearestByEmbedding(ctx, vector, 1-threshold, limit)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.MemoryID
	}

	memories, err := s.store.GetMemoriesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]types.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	// Preserve the index's distance order; neighbours whose memory row has
	// vanished are dropped.
	results := make([]SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		m, ok := byID[n.MemoryID]
		if !ok {
			continue
		}
		similarity := 1 - n.Distance
		results = append(results, SearchResult{Memory: m, Similarity: &similarity})
	}

	return results, nil
}

// AddRelationship creates a typed, weighted edge between two memory IDs.
// Endpoint existence is deliberately not checked: edges may reference
// memories that arrive later or live in another store.
func (s *Service) AddRelationship(ctx context.Context, fromID, toID, relType string, strength *float64, metadata map[string]interface{}) (*types.Relationship, error) {
	if fromID == "" || toID == "" {
		return nil, fmt.Errorf("%w: both memory IDs are required", storage.ErrInvalidInput)
	}
	if relType == "" {
		return nil, fmt.Errorf("%w: relationship type is required", storage.ErrInvalidInput)
	}

	// Strength is conventionally in [0,1] but never enforced: an explicit
	// zero-weight edge stores as zero. Only an omitted strength defaults.
	weight := defaultStrength
	if strength != nil {
		weight = *strength
	}

	r := &types.Relationship{
		ID:           uuid.NewString(),
		FromMemoryID: fromID,
		ToMemoryID:   toID,
		Type:         relType,
		Strength:     weight,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateRelationship(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

// GetRelationships queries edges filtered by memory ID, type, direction,
// and minimum strength. Every filter field is optional: an empty memory ID
// matches edges regardless of endpoint.
func (s *Service) GetRelationships(ctx context.Context, filter storage.RelationshipFilter) ([]types.Relationship, error) {
	if filter.Direction != "" && !filter.Direction.Valid() {
		return nil, fmt.Errorf("%w: invalid direction %q", storage.ErrInvalidInput, filter.Direction)
	}
	return s.store.QueryRelationships(ctx, filter)
}

// UpdateRelationship applies a partial update to an edge. Returns false when
// the edge does not exist.
func (s *Service) UpdateRelationship(ctx context.Context, id string, upd storage.RelationshipUpdate) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}
	return s.store.UpdateRelationship(ctx, id, upd)
}

// DeleteRelationship removes an edge. Returns false when it does not exist.
func (s *Service) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	return s.store.DeleteRelationship(ctx, id)
}

// GetConnectedMemories walks the relationship graph breadth-first from a
// start memory, treating edges as undirected, up to maxDepth hops. The start
// memory is excluded from the result, each memory appears once at its
// shallowest depth, and edges pointing at missing memories are silently
// skipped.
func (s *Service) GetConnectedMemories(ctx context.Context, startID string, maxDepth int) ([]ConnectedMemory, error) {
	if startID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if maxDepth < 1 {
		maxDepth = defaultTraversalDepth
	}

	type node struct {
		id    string
		depth int
	}

	visited := map[string]bool{startID: true}
	depths := make(map[string]int)
	queue := []node{{id: startID, depth: 0}}

	var order []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= maxDepth {
			continue
		}

		rels, err := s.store.QueryRelationships(ctx, storage.RelationshipFilter{
			MemoryID:  cur.id,
			Direction: types.DirectionBoth,
			Limit:     traversalEdgeLimit,
		})
		if err != nil {
			return nil, err
		}

		for _, r := range rels {
			other := r.OtherEndpoint(cur.id)
			if other == "" || visited[other] {
				continue
			}
			visited[other] = true
			depths[other] = cur.depth + 1
			order = append(order, other)
			queue = append(queue, node{id: other, depth: cur.depth + 1})
		}
	}

	if len(order) == 0 {
		return []ConnectedMemory{}, nil
	}

	memories, err := s.store.GetMemoriesByIDs(ctx, order)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]types.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	// Discovery order; IDs with no backing row fall out here.
	connected := make([]ConnectedMemory, 0, len(order))
	for _, id := range order {
		m, ok := byID[id]
		if !ok {
			continue
		}
		connected = append(connected, ConnectedMemory{Memory: m, Depth: depths[id]})
	}

	return connected, nil
}
