package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing. NewStore
// applies the full Schema, so no additional DDL is required in tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreateMemory(t *testing.T, store *Store, id, content string, createdAt time.Time) *types.Memory {
	t.Helper()
	m := &types.Memory{
		ID:        id,
		Content:   content,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := store.CreateMemory(context.Background(), m); err != nil {
		t.Fatalf("CreateMemory(%s) failed: %v", id, err)
	}
	return m
}

func TestMemoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{
		ID:      "mem-1",
		Content: "Paris is the capital of France",
		Metadata: map[string]interface{}{
			"source": "geography",
			"score":  0.75,
		},
	}
	if err := store.CreateMemory(ctx, m); err != nil {
		t.Fatalf("CreateMemory() failed: %v", err)
	}

	got, err := store.GetMemory(ctx, "mem-1")
	if err != nil {
		t.Fatalf("GetMemory() failed: %v", err)
	}
	if got.Content != m.Content {
		t.Errorf("Content: got %q, want %q", got.Content, m.Content)
	}
	if got.Metadata["source"] != "geography" {
		t.Errorf("Metadata[source]: got %v, want %q", got.Metadata["source"], "geography")
	}
	if got.Metadata["score"] != 0.75 {
		t.Errorf("Metadata[score]: got %v, want 0.75", got.Metadata["score"])
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be populated")
	}
}

func TestNilMetadataReadsAsEmptyMap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateMemory(t, store, "mem-nil-meta", "no metadata here", time.Now().UTC())

	got, err := store.GetMemory(ctx, "mem-nil-meta")
	if err != nil {
		t.Fatalf("GetMemory() failed: %v", err)
	}
	if got.Metadata == nil {
		t.Fatal("Metadata: got nil, want empty map")
	}
	if len(got.Metadata) != 0 {
		t.Errorf("Metadata: got %v, want empty map", got.Metadata)
	}
}

func TestNotFoundIdempotence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetMemory(ctx, "missing"); err != storage.ErrNotFound {
		t.Errorf("GetMemory(missing): got %v, want ErrNotFound", err)
	}

	content := "new content"
	updated, err := store.UpdateMemory(ctx, "missing", storage.MemoryUpdate{Content: &content})
	if err != nil {
		t.Fatalf("UpdateMemory(missing) errored: %v", err)
	}
	if updated {
		t.Error("UpdateMemory(missing): got true, want false")
	}

	deleted, err := store.DeleteMemory(ctx, "missing")
	if err != nil {
		t.Fatalf("DeleteMemory(missing) errored: %v", err)
	}
	if deleted {
		t.Error("DeleteMemory(missing): got true, want false")
	}
}

func TestUpdateMemory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Hour)
	mustCreateMemory(t, store, "mem-upd", "original", created)

	// Zero update on an existing row is a no-op success.
	ok, err := store.UpdateMemory(ctx, "mem-upd", storage.MemoryUpdate{})
	if err != nil {
		t.Fatalf("zero UpdateMemory errored: %v", err)
	}
	if !ok {
		t.Error("zero UpdateMemory on existing row: got false, want true")
	}

	content := "revised"
	ok, err = store.UpdateMemory(ctx, "mem-upd", storage.MemoryUpdate{
		Content:  &content,
		Metadata: map[string]interface{}{"rev": "2"},
	})
	if err != nil {
		t.Fatalf("UpdateMemory errored: %v", err)
	}
	if !ok {
		t.Fatal("UpdateMemory: got false, want true")
	}

	got, err := store.GetMemory(ctx, "mem-upd")
	if err != nil {
		t.Fatalf("GetMemory() failed: %v", err)
	}
	if got.Content != "revised" {
		t.Errorf("Content: got %q, want %q", got.Content, "revised")
	}
	if got.Metadata["rev"] != "2" {
		t.Errorf("Metadata[rev]: got %v, want %q", got.Metadata["rev"], "2")
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("UpdatedAt did not advance: %v <= %v", got.UpdatedAt, created)
	}
}

func TestMetadataReplacedWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{
		ID:       "mem-meta",
		Content:  "content",
		Metadata: map[string]interface{}{"keep": "no", "old": "yes"},
	}
	if err := store.CreateMemory(ctx, m); err != nil {
		t.Fatalf("CreateMemory() failed: %v", err)
	}

	if _, err := store.UpdateMemory(ctx, "mem-meta", storage.MemoryUpdate{
		Metadata: map[string]interface{}{"fresh": "yes"},
	}); err != nil {
		t.Fatalf("UpdateMemory errored: %v", err)
	}

	got, err := store.GetMemory(ctx, "mem-meta")
	if err != nil {
		t.Fatalf("GetMemory() failed: %v", err)
	}
	if _, exists := got.Metadata["old"]; exists {
		t.Error("metadata was merged, want wholesale replacement")
	}
	if got.Metadata["fresh"] != "yes" {
		t.Errorf("Metadata[fresh]: got %v, want %q", got.Metadata["fresh"], "yes")
	}
}

func TestDeleteMemoryCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	mustCreateMemory(t, store, "mem-a", "memory A", now)
	mustCreateMemory(t, store, "mem-b", "memory B", now)

	rel := &types.Relationship{
		ID:           "rel-ab",
		FromMemoryID: "mem-a",
		ToMemoryID:   "mem-b",
		Type:         "references",
		Strength:     0.8,
	}
	if err := store.CreateRelationship(ctx, rel); err != nil {
		t.Fatalf("CreateRelationship() failed: %v", err)
	}
	if err := store.UpsertEmbedding(ctx, "mem-a", []float64{1, 0, 0}); err != nil {
		t.Fatalf("UpsertEmbedding() failed: %v", err)
	}

	deleted, err := store.DeleteMemory(ctx, "mem-a")
	if err != nil {
		t.Fatalf("DeleteMemory() failed: %v", err)
	}
	if !deleted {
		t.Fatal("DeleteMemory: got false, want true")
	}

	// The edge must be gone when queried from either endpoint.
	for _, id := range []string{"mem-a", "mem-b"} {
		rels, err := store.QueryRelationships(ctx, storage.RelationshipFilter{MemoryID: id})
		if err != nil {
			t.Fatalf("QueryRelationships(%s) failed: %v", id, err)
		}
		if len(rels) != 0 {
			t.Errorf("QueryRelationships(%s): got %d edges after cascade, want 0", id, len(rels))
		}
	}

	// The embedding row is gone too.
	neighbors, err := store.NearestByEmbedding(ctx, []float64{1, 0, 0}, 2.0, 10)
	if err != nil {
		t.Fatalf("NearestByEmbedding() failed: %v", err)
	}
	if len(neighbors) != 0 {
		t.Errorf("NearestByEmbedding after delete: got %d hits, want 0", len(neighbors))
	}
}

func TestSearchByContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	mustCreateMemory(t, store, "m1", "Paris is the capital of France", base)
	mustCreateMemory(t, store, "m2", "Tokyo is the capital of Japan", base.Add(time.Minute))
	mustCreateMemory(t, store, "m3", "paris in lowercase", base.Add(2*time.Minute))

	// Case-sensitive: "Paris" must not match "paris".
	results, err := store.SearchByContent(ctx, "Paris", 10)
	if err != nil {
		t.Fatalf("SearchByContent() failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "m1" {
		t.Fatalf("SearchByContent(Paris): got %d results, want exactly m1", len(results))
	}

	// Newest first.
	results, err = store.SearchByContent(ctx, "capital", 10)
	if err != nil {
		t.Fatalf("SearchByContent() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("SearchByContent(capital): got %d results, want 2", len(results))
	}
	if results[0].ID != "m2" || results[1].ID != "m1" {
		t.Errorf("order: got [%s %s], want [m2 m1]", results[0].ID, results[1].ID)
	}

	// Limit is respected.
	results, err = store.SearchByContent(ctx, "capital", 1)
	if err != nil {
		t.Fatalf("SearchByContent() failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "m2" {
		t.Errorf("SearchByContent limit 1: got %d results (first %s), want just m2", len(results), results[0].ID)
	}
}

func TestGetMemoriesByIDsOmitsMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	mustCreateMemory(t, store, "exists-1", "one", now)
	mustCreateMemory(t, store, "exists-2", "two", now)

	got, err := store.GetMemoriesByIDs(ctx, []string{"exists-1", "ghost", "exists-2"})
	if err != nil {
		t.Fatalf("GetMemoriesByIDs() failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d memories, want 2 (missing silently omitted)", len(got))
	}

	got, err = store.GetMemoriesByIDs(ctx, nil)
	if err != nil {
		t.Fatalf("GetMemoriesByIDs(nil) failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetMemoriesByIDs(nil): got %d, want 0", len(got))
	}
}
