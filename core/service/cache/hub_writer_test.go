package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"kitchenhub_server/core/domain"
)

func newTestWriter(store *fakeCacheStore, onChange func(domain.EntityType)) *Writer {
	return NewWriter(store, domain.AccessAuthenticated, onChange)
}

func storedIDs(tb testing.TB, store *fakeCacheStore, t domain.EntityType) []string {
	tb.Helper()
	raw, ok := store.envelopes[storeKey(t, domain.AccessAuthenticated)]
	if !ok {
		return nil
	}
	var env domain.CacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		tb.Fatalf("unmarshal stored envelope: %v", err)
	}
	return recordIDs(tb, env.Data)
}

func TestAddEntityAppends(t *testing.T) {
	store := newFakeCacheStore()
	var changed []domain.EntityType
	writer := newTestWriter(store, func(et domain.EntityType) { changed = append(changed, et) })

	outcome := writer.AddEntity(context.Background(), domain.EntityRecipe, rec("r-1", readerNow))
	if outcome.Status != WriteApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteApplied)
	}
	if got := storedIDs(t, store, domain.EntityRecipe); len(got) != 1 || got[0] != "r-1" {
		t.Errorf("stored = %v, want [r-1]", got)
	}
	if len(changed) != 1 || changed[0] != domain.EntityRecipe {
		t.Errorf("onChange = %v, want one recipe notification", changed)
	}
}

func TestAddEntityDuplicateIsNoOp(t *testing.T) {
	store := newFakeCacheStore()
	writer := newTestWriter(store, nil)
	ctx := context.Background()

	writer.AddEntity(ctx, domain.EntityRecipe, rec("r-1", readerNow))
	before := store.envelopes[storeKey(domain.EntityRecipe, domain.AccessAuthenticated)]

	outcome := writer.AddEntity(ctx, domain.EntityRecipe, rec("r-1", readerNow.Add(time.Minute)))
	if outcome.Status != WriteDuplicate {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteDuplicate)
	}
	after := store.envelopes[storeKey(domain.EntityRecipe, domain.AccessAuthenticated)]
	if string(before) != string(after) {
		t.Error("duplicate add modified the envelope")
	}
}

func TestAddEntityRejectsRecordWithoutID(t *testing.T) {
	store := newFakeCacheStore()
	writer := newTestWriter(store, nil)

	outcome := writer.AddEntity(context.Background(), domain.EntityRecipe, json.RawMessage(`{"name":"no id"}`))
	if outcome.Status != WriteFailed {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteFailed)
	}
	if _, ok := store.envelopes[storeKey(domain.EntityRecipe, domain.AccessAuthenticated)]; ok {
		t.Error("rejected record was persisted")
	}
}

func TestUpdateEntityReplacesMatch(t *testing.T) {
	store := newFakeCacheStore()
	writer := newTestWriter(store, nil)
	ctx := context.Background()

	writer.AddEntity(ctx, domain.EntityChore, rec("c-1", readerNow.Add(-time.Hour)))
	writer.AddEntity(ctx, domain.EntityChore, rec("c-2", readerNow.Add(-time.Hour)))

	updated := json.RawMessage(`{"id":"c-1","name":"renamed","updatedAt":"2026-03-10T12:00:00Z"}`)
	outcome := writer.UpdateEntity(ctx, domain.EntityChore, updated, nil)
	if outcome.Status != WriteApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteApplied)
	}

	raw := store.envelopes[storeKey(domain.EntityChore, domain.AccessAuthenticated)]
	var env domain.CacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	var decoded struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(env.Data[0], &decoded); err != nil {
		t.Fatalf("decode updated record: %v", err)
	}
	if decoded.Name != "renamed" {
		t.Errorf("record name = %q, want renamed", decoded.Name)
	}
	if got := storedIDs(t, store, domain.EntityChore); len(got) != 2 {
		t.Errorf("stored = %v, want 2 records", got)
	}
}

func TestUpdateEntityUnmatchedBecomesImplicitAdd(t *testing.T) {
	store := newFakeCacheStore()
	writer := newTestWriter(store, nil)

	outcome := writer.UpdateEntity(context.Background(), domain.EntityChore, rec("c-new", readerNow), nil)
	if outcome.Status != WriteImplicitAdd {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteImplicitAdd)
	}
	if got := storedIDs(t, store, domain.EntityChore); len(got) != 1 || got[0] != "c-new" {
		t.Errorf("stored = %v, want [c-new]", got)
	}
}

func TestRemoveEntityDropsRecord(t *testing.T) {
	store := newFakeCacheStore()
	writer := newTestWriter(store, nil)
	ctx := context.Background()

	writer.AddEntity(ctx, domain.EntityListItem, rec("i-1", readerNow))
	writer.AddEntity(ctx, domain.EntityListItem, rec("i-2", readerNow))

	outcome := writer.RemoveEntity(ctx, domain.EntityListItem, "i-1")
	if outcome.Status != WriteApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteApplied)
	}
	if got := storedIDs(t, store, domain.EntityListItem); len(got) != 1 || got[0] != "i-2" {
		t.Errorf("stored = %v, want [i-2]", got)
	}
}

func TestRemoveEntityMissingIsNoOp(t *testing.T) {
	store := newFakeCacheStore()
	writer := newTestWriter(store, nil)

	outcome := writer.RemoveEntity(context.Background(), domain.EntityListItem, "i-ghost")
	if outcome.Status != WriteMissing {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteMissing)
	}
}

func TestUpdatePersistFailureInvalidatesCache(t *testing.T) {
	store := newFakeCacheStore()
	writer := newTestWriter(store, nil)
	ctx := context.Background()

	writer.AddEntity(ctx, domain.EntityRecipe, rec("r-1", readerNow))
	key := storeKey(domain.EntityRecipe, domain.AccessAuthenticated)
	syncedAt := readerNow
	store.metadata[key] = &domain.CacheMetadata{LastSyncedAt: &syncedAt}

	store.putEnvelopeErr = errors.New("disk full")
	outcome := writer.UpdateEntity(ctx, domain.EntityRecipe, rec("r-1", readerNow.Add(time.Minute)), nil)
	if outcome.Status != WriteInvalidated {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteInvalidated)
	}
	if outcome.Err == nil {
		t.Error("invalidated outcome carries no error")
	}
	// Metadata is gone, so the next read classifies missing and re-fetches.
	if _, ok := store.metadata[key]; ok {
		t.Error("metadata survived a failed update persist")
	}
}

func TestAddPersistFailureLeavesCacheIntact(t *testing.T) {
	store := newFakeCacheStore()
	writer := newTestWriter(store, nil)
	ctx := context.Background()

	writer.AddEntity(ctx, domain.EntityRecipe, rec("r-1", readerNow))
	key := storeKey(domain.EntityRecipe, domain.AccessAuthenticated)
	syncedAt := readerNow
	store.metadata[key] = &domain.CacheMetadata{LastSyncedAt: &syncedAt}

	store.putEnvelopeErr = errors.New("disk full")
	outcome := writer.AddEntity(ctx, domain.EntityRecipe, rec("r-2", readerNow))
	if outcome.Status != WriteFailed {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteFailed)
	}
	if _, ok := store.metadata[key]; !ok {
		t.Error("failed add dropped the metadata")
	}
	if got := storedIDs(t, store, domain.EntityRecipe); len(got) != 1 || got[0] != "r-1" {
		t.Errorf("stored = %v, want [r-1]", got)
	}
}

func TestWriterRecoversFromUnparsableEnvelope(t *testing.T) {
	store := newFakeCacheStore()
	store.envelopes[storeKey(domain.EntityChore, domain.AccessAuthenticated)] = []byte(`{"schemaVersion":`)
	writer := newTestWriter(store, nil)

	outcome := writer.AddEntity(context.Background(), domain.EntityChore, rec("c-1", readerNow))
	if outcome.Status != WriteApplied {
		t.Fatalf("status = %s, want %s", outcome.Status, WriteApplied)
	}
	if got := storedIDs(t, store, domain.EntityChore); len(got) != 1 || got[0] != "c-1" {
		t.Errorf("stored = %v, want [c-1]", got)
	}
}
