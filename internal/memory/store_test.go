package memory

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/conductor-ai/conductor/pkg/models"
)

// fakeVectors matches on shared words instead of cosine distance, which is
// enough to exercise scoping and ranking plumbing.
type fakeVectors struct {
	collection string
	dimension  int
	records    []models.MemoryRecord
	vectors    [][]float32
	deleted    []string
}

func (f *fakeVectors) EnsureCollection(_ context.Context, name string, dim int) error {
	f.collection = name
	f.dimension = dim
	return nil
}

func (f *fakeVectors) Upsert(_ context.Context, _ string, record models.MemoryRecord, vector []float32) error {
	f.records = append(f.records, record)
	f.vectors = append(f.vectors, vector)
	return nil
}

func (f *fakeVectors) Search(_ context.Context, _ string, vector []float32, filter SearchFilter, limit int) ([]models.MemoryResult, error) {
	var out []models.MemoryResult
	for i, record := range f.records {
		if record.ContextID != filter.ContextID {
			continue
		}
		if filter.ConversationID != "" && record.ConversationID != filter.ConversationID {
			continue
		}
		out = append(out, models.MemoryResult{Record: record, Score: overlap(vector, f.vectors[i])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeVectors) DeleteByContext(_ context.Context, _ string, contextID string) error {
	f.deleted = append(f.deleted, contextID)
	kept := f.records[:0]
	keptVectors := f.vectors[:0]
	for i, record := range f.records {
		if record.ContextID != contextID {
			kept = append(kept, record)
			keptVectors = append(keptVectors, f.vectors[i])
		}
	}
	f.records = kept
	f.vectors = keptVectors
	return nil
}

func (f *fakeVectors) Close() error { return nil }

func overlap(a, b []float32) float32 {
	var score float32
	for i := range min(len(a), len(b)) {
		if a[i] != 0 && a[i] == b[i] {
			score++
		}
	}
	return score
}

// wordEmbedder hashes words into a sparse vector so equal words overlap.
type wordEmbedder struct{}

func (wordEmbedder) Dimension() int { return 64 }

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 64)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var h uint32
		for _, r := range word {
			h = h*31 + uint32(r)
		}
		v[h%64] = float32(h%97) + 1
	}
	return v, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeVectors) {
	t.Helper()
	vectors := &fakeVectors{}
	manager, err := NewManager(context.Background(), vectors, wordEmbedder{}, "test-memories", nil)
	if err != nil {
		t.Fatal(err)
	}
	return manager, vectors
}

func TestStore_SaveAndSearch(t *testing.T) {
	manager, _ := newTestManager(t)
	store := manager.ForContext("ctx-1")

	id, err := store.Save(context.Background(), "conv-1", "the deploy pipeline uses blue green rollout", nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if id == "" {
		t.Fatal("Save() returned empty id")
	}

	results, err := store.Search(context.Background(), "deploy rollout", "", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Record.Text, "blue green") {
		t.Errorf("results = %+v", results)
	}
}

func TestStore_ContextIsolation(t *testing.T) {
	manager, _ := newTestManager(t)
	alpha := manager.ForContext("ctx-alpha")
	beta := manager.ForContext("ctx-beta")

	if _, err := alpha.Save(context.Background(), "", "alpha secret launch codes", nil); err != nil {
		t.Fatal(err)
	}

	results, err := beta.Search(context.Background(), "secret launch codes", "", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("memories leaked across contexts: %+v", results)
	}
}

func TestStore_FreshContextSearchIsEmpty(t *testing.T) {
	manager, _ := newTestManager(t)
	store := manager.ForContext("ctx-new")

	results, err := store.Search(context.Background(), "anything at all", "", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want empty", results)
	}
}

func TestStore_ConversationFilter(t *testing.T) {
	manager, _ := newTestManager(t)
	store := manager.ForContext("ctx-1")

	if _, err := store.Save(context.Background(), "conv-a", "weekly report cadence friday", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(context.Background(), "conv-b", "weekly report cadence monday", nil); err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(context.Background(), "weekly report cadence", "conv-a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Record.ConversationID != "conv-a" {
		t.Errorf("results = %+v, want only conv-a", results)
	}
}

func TestStore_SaveCarriesMetadata(t *testing.T) {
	manager, vectors := newTestManager(t)
	store := manager.ForContext("ctx-1")

	if _, err := store.Save(context.Background(), "conv-1", "retro action items", map[string]string{"source": "chat"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(vectors.records) != 1 || vectors.records[0].Metadata["source"] != "chat" {
		t.Errorf("stored record = %+v, metadata dropped", vectors.records)
	}
}

func TestStore_RejectsEmptyText(t *testing.T) {
	manager, _ := newTestManager(t)
	store := manager.ForContext("ctx-1")
	if _, err := store.Save(context.Background(), "", "   ", nil); err == nil {
		t.Error("Save() blank text: error = nil")
	}
}

func TestManager_DeleteContext(t *testing.T) {
	manager, vectors := newTestManager(t)
	store := manager.ForContext("ctx-1")
	if _, err := store.Save(context.Background(), "", "remember the renewal date", nil); err != nil {
		t.Fatal(err)
	}

	if err := manager.DeleteContext(context.Background(), "ctx-1"); err != nil {
		t.Fatalf("DeleteContext() error = %v", err)
	}
	if len(vectors.records) != 0 {
		t.Errorf("records = %+v after delete", vectors.records)
	}

	results, err := store.Search(context.Background(), "renewal date", "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v after delete", results)
	}
}
