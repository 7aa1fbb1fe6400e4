package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/internal/storage/sqlite"
)

// fakeGenerator returns canned vectors per content string so search tests
// control exactly which memories land near a query. Unknown content gets a
// far-away default vector. Setting fail makes every call error, which
// exercises the substring fallback path.
type fakeGenerator struct {
	vectors map[string][]float64
	fail    bool
}

func (g *fakeGenerator) Embed(_ context.Context, text string) ([]float64, error) {
	if g.fail {
		return nil, errors.New("embedding service unavailable")
	}
	if v, ok := g.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func floatPtr(f float64) *float64 { return &f }

func newTestService(t *testing.T, gen *fakeGenerator) *Service {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if gen == nil {
		gen = &fakeGenerator{}
	}
	return NewService(store, gen, nil)
}

func TestAddAndGetMemory(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.AddMemory(ctx, "remember the milk", map[string]interface{}{"tag": "errand"})
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("AddMemory returned empty ID")
	}
	if created.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}

	got, err := svc.GetMemory(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetMemory() failed: %v", err)
	}
	if got == nil || got.Content != "remember the milk" {
		t.Fatalf("GetMemory: got %+v, want the created memory", got)
	}
	if got.Metadata["tag"] != "errand" {
		t.Errorf("Metadata[tag]: got %v, want %q", got.Metadata["tag"], "errand")
	}

	// Missing IDs are reported as absence, not failure.
	got, err = svc.GetMemory(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("GetMemory(missing) errored: %v", err)
	}
	if got != nil {
		t.Errorf("GetMemory(missing): got %+v, want nil", got)
	}
}

func TestAddMemoryEmbeddingFailurePropagates(t *testing.T) {
	svc := newTestService(t, &fakeGenerator{fail: true})

	if _, err := svc.AddMemory(context.Background(), "doomed", nil); err == nil {
		t.Fatal("AddMemory with broken embedder succeeded, want error")
	}
}

func TestAddMemoryEmptyContent(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.AddMemory(context.Background(), "", nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("AddMemory(empty): got %v, want ErrInvalidInput", err)
	}
}

func TestUpdateMemory(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.AddMemory(ctx, "original", nil)
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}

	content := "revised"
	updated, err := svc.UpdateMemory(ctx, created.ID, storage.MemoryUpdate{Content: &content})
	if err != nil {
		t.Fatalf("UpdateMemory() failed: %v", err)
	}
	if !updated {
		t.Fatal("UpdateMemory: got false, want true")
	}

	got, err := svc.GetMemory(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetMemory() failed: %v", err)
	}
	if got.Content != "revised" {
		t.Errorf("Content: got %q, want %q", got.Content, "revised")
	}

	updated, err = svc.UpdateMemory(ctx, "no-such-id", storage.MemoryUpdate{Content: &content})
	if err != nil {
		t.Fatalf("UpdateMemory(missing) errored: %v", err)
	}
	if updated {
		t.Error("UpdateMemory(missing): got true, want false")
	}
}

func TestDeleteMemory(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.AddMemory(ctx, "ephemeral", nil)
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}

	deleted, err := svc.DeleteMemory(ctx, created.ID)
	if err != nil {
		t.Fatalf("DeleteMemory() failed: %v", err)
	}
	if !deleted {
		t.Fatal("DeleteMemory: got false, want true")
	}

	deleted, err = svc.DeleteMemory(ctx, created.ID)
	if err != nil {
		t.Fatalf("DeleteMemory(again) errored: %v", err)
	}
	if deleted {
		t.Error("DeleteMemory(again): got true, want false")
	}
}

func TestSearchMemoriesVectorPath(t *testing.T) {
	gen := &fakeGenerator{vectors: map[string][]float64{
		"Paris is the capital of France": {1, 0, 0},
		"Tokyo is the capital of Japan":  {0, 1, 0},
		"French capital city":            {0.95, 0.05, 0},
	}}
	svc := newTestService(t, gen)
	ctx := context.Background()

	paris, err := svc.AddMemory(ctx, "Paris is the capital of France", nil)
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}
	if _, err := svc.AddMemory(ctx, "Tokyo is the capital of Japan", nil); err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}

	results, err := svc.SearchMemories(ctx, "French capital city", 10, 0.5)
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want just the Paris memory", len(results))
	}
	if results[0].Memory.ID != paris.ID {
		t.Errorf("got memory %s, want %s", results[0].Memory.ID, paris.ID)
	}
	if results[0].Similarity == nil {
		t.Fatal("vector-path result missing similarity score")
	}
	if *results[0].Similarity < 0.9 {
		t.Errorf("similarity: got %v, want > 0.9", *results[0].Similarity)
	}
}

func TestSearchMemoriesFallsBackToSubstring(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(t, gen)
	ctx := context.Background()

	if _, err := svc.AddMemory(ctx, "Paris is the capital of France", nil); err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}
	if _, err := svc.AddMemory(ctx, "Tokyo is the capital of Japan", nil); err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}

	// Break the embedder after the memories are in: the query embedding
	// fails, so the search must degrade to a substring scan.
	gen.fail = true

	results, err := svc.SearchMemories(ctx, "capital", 10, 0.5)
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("fallback: got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Similarity != nil {
			t.Errorf("fallback result %s carries a similarity score", r.Memory.ID)
		}
	}

	// The fallback is case-sensitive.
	results, err = svc.SearchMemories(ctx, "CAPITAL", 10, 0.5)
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("case mismatch: got %d results, want 0", len(results))
	}
}

func TestSearchMemoriesEmptyQuery(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.SearchMemories(context.Background(), "", 10, 0.5)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("SearchMemories(empty): got %v, want ErrInvalidInput", err)
	}
}

func TestAddRelationship(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a, err := svc.AddMemory(ctx, "a", nil)
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}
	b, err := svc.AddMemory(ctx, "b", nil)
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}

	// Omitted strength takes the default.
	rel, err := svc.AddRelationship(ctx, a.ID, b.ID, "references", nil, nil)
	if err != nil {
		t.Fatalf("AddRelationship() failed: %v", err)
	}
	if rel.Strength != 1.0 {
		t.Errorf("default strength: got %v, want 1.0", rel.Strength)
	}
	if rel.ID == "" {
		t.Error("AddRelationship returned empty ID")
	}

	// An explicit zero is a zero-weight edge, not the default.
	rel, err = svc.AddRelationship(ctx, a.ID, b.ID, "references", floatPtr(0), nil)
	if err != nil {
		t.Fatalf("AddRelationship(0) failed: %v", err)
	}
	if rel.Strength != 0 {
		t.Errorf("explicit zero strength: got %v, want 0", rel.Strength)
	}

	// Strength is conventionally [0,1] but not enforced.
	rel, err = svc.AddRelationship(ctx, a.ID, b.ID, "references", floatPtr(1.5), nil)
	if err != nil {
		t.Fatalf("AddRelationship(1.5) failed: %v", err)
	}
	if rel.Strength != 1.5 {
		t.Errorf("out-of-convention strength: got %v, want 1.5", rel.Strength)
	}

	// Missing required fields are rejected.
	if _, err := svc.AddRelationship(ctx, "", b.ID, "references", nil, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty from: got %v, want ErrInvalidInput", err)
	}
	if _, err := svc.AddRelationship(ctx, a.ID, b.ID, "", nil, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty type: got %v, want ErrInvalidInput", err)
	}
}

func TestGetConnectedMemories(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	// Chain: a -> b -> c -> d, plus a back-edge c -> a to exercise cycles.
	ids := make(map[string]string)
	for _, name := range []string{"a", "b", "c", "d"} {
		m, err := svc.AddMemory(ctx, "node "+name, nil)
		if err != nil {
			t.Fatalf("AddMemory(%s) failed: %v", name, err)
		}
		ids[name] = m.ID
	}
	edges := [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"c", "a"}}
	for _, e := range edges {
		if _, err := svc.AddRelationship(ctx, ids[e[0]], ids[e[1]], "linked", floatPtr(0.5), nil); err != nil {
			t.Fatalf("AddRelationship(%s->%s) failed: %v", e[0], e[1], err)
		}
	}

	depthOf := func(results []ConnectedMemory, id string) (int, bool) {
		for _, r := range results {
			if r.Memory.ID == id {
				return r.Depth, true
			}
		}
		return 0, false
	}

	cases := []struct {
		maxDepth int
		want     map[string]int
	}{
		// Traversal is undirected: from a, both b (a->b) and c (c->a)
		// are one hop away.
		{1, map[string]int{"b": 1, "c": 1}},
		{2, map[string]int{"b": 1, "c": 1, "d": 2}},
		{10, map[string]int{"b": 1, "c": 1, "d": 2}},
	}
	for _, tc := range cases {
		results, err := svc.GetConnectedMemories(ctx, ids["a"], tc.maxDepth)
		if err != nil {
			t.Fatalf("GetConnectedMemories(depth=%d) failed: %v", tc.maxDepth, err)
		}
		if len(results) != len(tc.want) {
			t.Errorf("depth %d: got %d memories, want %d", tc.maxDepth, len(results), len(tc.want))
		}
		for name, wantDepth := range tc.want {
			depth, found := depthOf(results, ids[name])
			if !found {
				t.Errorf("depth %d: node %s missing from results", tc.maxDepth, name)
				continue
			}
			if depth != wantDepth {
				t.Errorf("depth %d: node %s at depth %d, want %d", tc.maxDepth, name, depth, wantDepth)
			}
		}
		// The start node is never part of its own neighbourhood.
		if _, found := depthOf(results, ids["a"]); found {
			t.Errorf("depth %d: start node included in results", tc.maxDepth)
		}
	}
}

func TestGetConnectedMemoriesSkipsDanglingEdges(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a, err := svc.AddMemory(ctx, "anchored", nil)
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}
	if _, err := svc.AddRelationship(ctx, a.ID, "ghost", "linked", floatPtr(0.5), nil); err != nil {
		t.Fatalf("AddRelationship() failed: %v", err)
	}

	results, err := svc.GetConnectedMemories(ctx, a.ID, 2)
	if err != nil {
		t.Fatalf("GetConnectedMemories() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d memories, want 0 (dangling endpoint has no row)", len(results))
	}
}

func TestGetRelationshipsValidation(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.GetRelationships(context.Background(), storage.RelationshipFilter{
		MemoryID:  "any",
		Direction: "sideways",
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("invalid direction: got %v, want ErrInvalidInput", err)
	}
}

func TestGetRelationshipsWithoutMemoryID(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a, err := svc.AddMemory(ctx, "a", nil)
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}
	b, err := svc.AddMemory(ctx, "b", nil)
	if err != nil {
		t.Fatalf("AddMemory() failed: %v", err)
	}
	if _, err := svc.AddRelationship(ctx, a.ID, b.ID, "supports", floatPtr(0.9), nil); err != nil {
		t.Fatalf("AddRelationship() failed: %v", err)
	}
	if _, err := svc.AddRelationship(ctx, b.ID, a.ID, "contradicts", floatPtr(0.4), nil); err != nil {
		t.Fatalf("AddRelationship() failed: %v", err)
	}

	// Memory ID is optional: a type-only filter queries all edges.
	rels, err := svc.GetRelationships(ctx, storage.RelationshipFilter{Type: "supports"})
	if err != nil {
		t.Fatalf("GetRelationships(type only) failed: %v", err)
	}
	if len(rels) != 1 || rels[0].Type != "supports" {
		t.Fatalf("type-only filter: got %d edges, want the one supports edge", len(rels))
	}

	// So is everything else: an empty filter lists every edge.
	rels, err = svc.GetRelationships(ctx, storage.RelationshipFilter{})
	if err != nil {
		t.Fatalf("GetRelationships(empty) failed: %v", err)
	}
	if len(rels) != 2 {
		t.Errorf("empty filter: got %d edges, want 2", len(rels))
	}

	// A strength floor alone works too.
	rels, err = svc.GetRelationships(ctx, storage.RelationshipFilter{MinStrength: 0.5})
	if err != nil {
		t.Fatalf("GetRelationships(minStrength only) failed: %v", err)
	}
	if len(rels) != 1 || rels[0].Strength != 0.9 {
		t.Errorf("minStrength-only filter: got %d edges, want the 0.9 edge", len(rels))
	}
}
