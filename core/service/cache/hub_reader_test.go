package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeCacheStore struct {
	envelopes map[string][]byte
	metadata  map[string]*domain.CacheMetadata

	putEnvelopeErr error
	deletedMeta    int
	deletedEnv     int
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{
		envelopes: make(map[string][]byte),
		metadata:  make(map[string]*domain.CacheMetadata),
	}
}

func storeKey(t domain.EntityType, mode domain.AccessMode) string {
	return string(t) + "/" + string(mode)
}

func (s *fakeCacheStore) GetEnvelope(_ context.Context, t domain.EntityType, mode domain.AccessMode) ([]byte, bool, error) {
	raw, ok := s.envelopes[storeKey(t, mode)]
	return raw, ok, nil
}

func (s *fakeCacheStore) PutEnvelope(_ context.Context, t domain.EntityType, mode domain.AccessMode, raw []byte) error {
	if s.putEnvelopeErr != nil {
		return s.putEnvelopeErr
	}
	s.envelopes[storeKey(t, mode)] = raw
	return nil
}

func (s *fakeCacheStore) DeleteEnvelope(_ context.Context, t domain.EntityType, mode domain.AccessMode) error {
	delete(s.envelopes, storeKey(t, mode))
	s.deletedEnv++
	return nil
}

func (s *fakeCacheStore) GetMetadata(_ context.Context, t domain.EntityType, mode domain.AccessMode) (*domain.CacheMetadata, error) {
	return s.metadata[storeKey(t, mode)], nil
}

func (s *fakeCacheStore) PutMetadata(_ context.Context, t domain.EntityType, mode domain.AccessMode, meta *domain.CacheMetadata) error {
	s.metadata[storeKey(t, mode)] = meta
	return nil
}

func (s *fakeCacheStore) DeleteMetadata(_ context.Context, t domain.EntityType, mode domain.AccessMode) error {
	delete(s.metadata, storeKey(t, mode))
	s.deletedMeta++
	return nil
}

type fakeRemote struct {
	snapshots map[domain.EntityType][]json.RawMessage
	fetchErr  error
	fetches   int
}

func (r *fakeRemote) FetchSnapshot(_ context.Context, t domain.EntityType) ([]json.RawMessage, error) {
	r.fetches++
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.snapshots[t], nil
}

func (r *fakeRemote) SubmitBatch(_ context.Context, _ *domain.SyncBatch) (*domain.SyncResult, error) {
	return nil, out.ErrUnreachable
}

type fakeReach struct{ online bool }

func (r *fakeReach) Online() bool { return r.online }

// =============================================================================
// Helpers
// =============================================================================

var readerNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func rec(id string, updatedAt time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"name":"item-%s","updatedAt":%q}`, id, id, updatedAt.Format(time.RFC3339)))
}

func tombstone(id string, updatedAt time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"id":%q,"updatedAt":%q,"deletedAt":%q}`, id, updatedAt.Format(time.RFC3339), updatedAt.Format(time.RFC3339)))
}

func seedEnvelope(tb testing.TB, store *fakeCacheStore, t domain.EntityType, schemaVersion int, age time.Duration, records ...json.RawMessage) {
	tb.Helper()
	if records == nil {
		records = []json.RawMessage{}
	}
	env := domain.CacheEnvelope{SchemaVersion: schemaVersion, Data: records}
	raw, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	key := storeKey(t, domain.AccessAuthenticated)
	store.envelopes[key] = raw
	syncedAt := readerNow.Add(-age)
	store.metadata[key] = &domain.CacheMetadata{LastSyncedAt: &syncedAt}
}

func newTestReader(store *fakeCacheStore, remote *fakeRemote, online bool) *Reader {
	r := NewReader(store, remote, &fakeReach{online: online}, domain.AccessAuthenticated, domain.DefaultCacheThresholds(), nil)
	r.now = func() time.Time { return readerNow }
	return r
}

func recordIDs(tb testing.TB, records []json.RawMessage) []string {
	tb.Helper()
	ids := make([]string, 0, len(records))
	for _, raw := range records {
		p, err := domain.ProbeRecord(raw)
		if err != nil {
			tb.Fatalf("probe record: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return ids
}

// =============================================================================
// Tests
// =============================================================================

func TestReadStaleServesCacheWithoutFetch(t *testing.T) {
	store := newFakeCacheStore()
	remote := &fakeRemote{}
	seedEnvelope(t, store, domain.EntityRecipe, domain.CacheSchemaVersion, 2*time.Hour,
		rec("r-1", readerNow.Add(-3*time.Hour)))

	reader := newTestReader(store, remote, true)
	result, err := reader.Read(context.Background(), domain.EntityRecipe, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if result.Status != domain.ReadOK {
		t.Errorf("status = %s, want %s", result.Status, domain.ReadOK)
	}
	if len(result.Records) != 1 {
		t.Errorf("records = %d, want 1", len(result.Records))
	}
	if remote.fetches != 0 {
		t.Errorf("staleness alone triggered %d remote fetches", remote.fetches)
	}
}

func TestReadForceRefreshFetchesAndPersists(t *testing.T) {
	store := newFakeCacheStore()
	remote := &fakeRemote{snapshots: map[domain.EntityType][]json.RawMessage{
		domain.EntityRecipe: {rec("r-1", readerNow), rec("r-2", readerNow)},
	}}
	seedEnvelope(t, store, domain.EntityRecipe, domain.CacheSchemaVersion, time.Minute,
		rec("r-old", readerNow.Add(-time.Hour)))

	reader := newTestReader(store, remote, true)
	result, err := reader.Read(context.Background(), domain.EntityRecipe, true)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if remote.fetches != 1 {
		t.Fatalf("fetches = %d, want 1", remote.fetches)
	}
	if got := recordIDs(t, result.Records); len(got) != 2 || got[0] != "r-1" || got[1] != "r-2" {
		t.Errorf("records = %v, want [r-1 r-2]", got)
	}

	// The fetched snapshot replaces the stored envelope and bumps metadata.
	raw := store.envelopes[storeKey(domain.EntityRecipe, domain.AccessAuthenticated)]
	var env domain.CacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal persisted envelope: %v", err)
	}
	if env.SchemaVersion != domain.CacheSchemaVersion || len(env.Data) != 2 {
		t.Errorf("persisted envelope = v%d/%d records, want v%d/2", env.SchemaVersion, len(env.Data), domain.CacheSchemaVersion)
	}
	meta := store.metadata[storeKey(domain.EntityRecipe, domain.AccessAuthenticated)]
	if meta == nil || meta.LastSyncedAt == nil || !meta.LastSyncedAt.Equal(readerNow) {
		t.Errorf("metadata not refreshed: %+v", meta)
	}
}

func TestReadForceRefreshOfflineServesCache(t *testing.T) {
	store := newFakeCacheStore()
	remote := &fakeRemote{}
	seedEnvelope(t, store, domain.EntityChore, domain.CacheSchemaVersion, time.Minute,
		rec("c-1", readerNow.Add(-time.Hour)))

	reader := newTestReader(store, remote, false)
	result, err := reader.Read(context.Background(), domain.EntityChore, true)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if remote.fetches != 0 {
		t.Errorf("offline forceRefresh reached the remote %d times", remote.fetches)
	}
	if result.Status != domain.ReadOK || len(result.Records) != 1 {
		t.Errorf("result = %s/%d records, want ok/1", result.Status, len(result.Records))
	}
}

func TestReadMissingOnlineFetches(t *testing.T) {
	store := newFakeCacheStore()
	remote := &fakeRemote{snapshots: map[domain.EntityType][]json.RawMessage{
		domain.EntityShoppingList: {rec("l-1", readerNow)},
	}}

	reader := newTestReader(store, remote, true)
	result, err := reader.Read(context.Background(), domain.EntityShoppingList, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if remote.fetches != 1 {
		t.Errorf("fetches = %d, want 1", remote.fetches)
	}
	if result.Status != domain.ReadOK || len(result.Records) != 1 {
		t.Errorf("result = %s/%d records, want ok/1", result.Status, len(result.Records))
	}
}

func TestReadMissingOfflineYieldsEmpty(t *testing.T) {
	store := newFakeCacheStore()
	remote := &fakeRemote{}

	reader := newTestReader(store, remote, false)
	result, err := reader.Read(context.Background(), domain.EntityShoppingList, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if result.Status != domain.ReadOK {
		t.Errorf("status = %s, want %s", result.Status, domain.ReadOK)
	}
	if result.Records == nil || len(result.Records) != 0 {
		t.Errorf("records = %v, want empty non-nil slice", result.Records)
	}
	if remote.fetches != 0 {
		t.Errorf("offline read reached the remote %d times", remote.fetches)
	}
}

func TestReadCorruptOfflineYieldsEmptyCorrupt(t *testing.T) {
	store := newFakeCacheStore()
	key := storeKey(domain.EntityRecipe, domain.AccessAuthenticated)
	store.envelopes[key] = []byte(`{"schemaVersion":2,"data":[{"id"`)
	syncedAt := readerNow.Add(-time.Minute)
	store.metadata[key] = &domain.CacheMetadata{LastSyncedAt: &syncedAt}

	reader := newTestReader(store, &fakeRemote{}, false)
	result, err := reader.Read(context.Background(), domain.EntityRecipe, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if result.Status != domain.ReadCorrupt {
		t.Errorf("status = %s, want %s", result.Status, domain.ReadCorrupt)
	}
	if len(result.Records) != 0 {
		t.Errorf("corrupt cache fabricated %d records", len(result.Records))
	}
}

func TestReadCorruptOnlineRefetches(t *testing.T) {
	store := newFakeCacheStore()
	key := storeKey(domain.EntityRecipe, domain.AccessAuthenticated)
	store.envelopes[key] = []byte(`not json at all`)
	syncedAt := readerNow.Add(-time.Minute)
	store.metadata[key] = &domain.CacheMetadata{LastSyncedAt: &syncedAt}

	remote := &fakeRemote{snapshots: map[domain.EntityType][]json.RawMessage{
		domain.EntityRecipe: {rec("r-1", readerNow)},
	}}
	reader := newTestReader(store, remote, true)
	result, err := reader.Read(context.Background(), domain.EntityRecipe, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if remote.fetches != 1 {
		t.Errorf("fetches = %d, want 1", remote.fetches)
	}
	if result.Status != domain.ReadOK || len(result.Records) != 1 {
		t.Errorf("result = %s/%d records, want ok/1", result.Status, len(result.Records))
	}
}

func TestReadFetchFailureFallsBackToPolicy(t *testing.T) {
	store := newFakeCacheStore()
	remote := &fakeRemote{fetchErr: out.ErrUnreachable}

	reader := newTestReader(store, remote, true)
	result, err := reader.Read(context.Background(), domain.EntityChore, false)
	if err != nil {
		t.Fatalf("Read() error = %v, want graceful fallback", err)
	}
	if result.Status != domain.ReadOK || len(result.Records) != 0 {
		t.Errorf("result = %s/%d records, want ok/0", result.Status, len(result.Records))
	}
}

func TestReadOlderSchemaTagsMigrated(t *testing.T) {
	store := newFakeCacheStore()
	seedEnvelope(t, store, domain.EntityChore, 1, time.Minute,
		rec("c-1", readerNow.Add(-time.Hour)))

	reader := newTestReader(store, &fakeRemote{}, true)
	result, err := reader.Read(context.Background(), domain.EntityChore, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if result.Status != domain.ReadMigrated {
		t.Errorf("status = %s, want %s", result.Status, domain.ReadMigrated)
	}
}

func TestReadExcludesTombstones(t *testing.T) {
	store := newFakeCacheStore()
	seedEnvelope(t, store, domain.EntityListItem, domain.CacheSchemaVersion, time.Minute,
		rec("i-1", readerNow.Add(-time.Hour)),
		tombstone("i-2", readerNow.Add(-time.Hour)),
		rec("i-3", readerNow.Add(-time.Hour)))

	reader := newTestReader(store, &fakeRemote{}, true)
	result, err := reader.Read(context.Background(), domain.EntityListItem, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := recordIDs(t, result.Records); len(got) != 2 || got[0] != "i-1" || got[1] != "i-3" {
		t.Errorf("records = %v, want [i-1 i-3]", got)
	}
}

func TestReadFutureVersionOfflineServesLocalSnapshot(t *testing.T) {
	store := newFakeCacheStore()
	seedEnvelope(t, store, domain.EntityRecipe, domain.CacheSchemaVersion+1, time.Minute,
		rec("r-1", readerNow.Add(-time.Hour)))

	remote := &fakeRemote{}
	reader := newTestReader(store, remote, false)
	result, err := reader.Read(context.Background(), domain.EntityRecipe, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if result.Status != domain.ReadFutureVersion {
		t.Errorf("status = %s, want %s", result.Status, domain.ReadFutureVersion)
	}
	if got := recordIDs(t, result.Records); len(got) != 1 || got[0] != "r-1" {
		t.Errorf("records = %v, want [r-1]", got)
	}
	if remote.fetches != 0 {
		t.Errorf("offline future_version reached the remote %d times", remote.fetches)
	}
}

func TestReadFutureVersionOnlineMergesByNewerUpdatedAt(t *testing.T) {
	store := newFakeCacheStore()
	localNewer := readerNow.Add(-time.Minute)
	remoteOlder := readerNow.Add(-time.Hour)
	seedEnvelope(t, store, domain.EntityRecipe, domain.CacheSchemaVersion+1, time.Minute,
		rec("r-local-wins", localNewer),
		rec("r-local-only", localNewer))

	remote := &fakeRemote{snapshots: map[domain.EntityType][]json.RawMessage{
		domain.EntityRecipe: {
			rec("r-local-wins", remoteOlder),
			rec("r-remote-only", readerNow),
		},
	}}

	reader := newTestReader(store, remote, true)
	result, err := reader.Read(context.Background(), domain.EntityRecipe, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if result.Status != domain.ReadFutureVersion {
		t.Errorf("status = %s, want %s", result.Status, domain.ReadFutureVersion)
	}

	got := recordIDs(t, result.Records)
	if len(got) != 3 {
		t.Fatalf("records = %v, want 3 merged records", got)
	}

	// The local copy of r-local-wins is newer, so its payload survives.
	p, err := domain.ProbeRecord(result.Records[0])
	if err != nil {
		t.Fatalf("probe merged record: %v", err)
	}
	if p.ID != "r-local-wins" || !p.UpdatedAt.Equal(localNewer) {
		t.Errorf("merged record = %s@%s, want r-local-wins@%s", p.ID, p.UpdatedAt, localNewer)
	}

	// The merged envelope keeps the higher schema version.
	raw := store.envelopes[storeKey(domain.EntityRecipe, domain.AccessAuthenticated)]
	var env domain.CacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal persisted envelope: %v", err)
	}
	if env.SchemaVersion != domain.CacheSchemaVersion+1 {
		t.Errorf("persisted schema = %d, want %d", env.SchemaVersion, domain.CacheSchemaVersion+1)
	}
}

func TestReadFutureVersionMergeRemoteWinsTies(t *testing.T) {
	store := newFakeCacheStore()
	ts := readerNow.Add(-time.Hour)
	local := json.RawMessage(fmt.Sprintf(`{"id":"r-1","name":"local","updatedAt":%q}`, ts.Format(time.RFC3339)))
	remoteRec := json.RawMessage(fmt.Sprintf(`{"id":"r-1","name":"remote","updatedAt":%q}`, ts.Format(time.RFC3339)))
	seedEnvelope(t, store, domain.EntityRecipe, domain.CacheSchemaVersion+1, time.Minute, local)

	remote := &fakeRemote{snapshots: map[domain.EntityType][]json.RawMessage{
		domain.EntityRecipe: {remoteRec},
	}}

	reader := newTestReader(store, remote, true)
	result, err := reader.Read(context.Background(), domain.EntityRecipe, false)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(result.Records))
	}
	var decoded struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(result.Records[0], &decoded); err != nil {
		t.Fatalf("decode merged record: %v", err)
	}
	if decoded.Name != "remote" {
		t.Errorf("tie went to %q, want the remote copy", decoded.Name)
	}
}

func TestReadRejectsUnknownEntityType(t *testing.T) {
	reader := newTestReader(newFakeCacheStore(), &fakeRemote{}, true)
	if _, err := reader.Read(context.Background(), domain.EntityType("appliance"), false); err == nil {
		t.Fatal("Read() accepted an unknown entity type")
	}
}

func TestInvalidateDropsMetadataAndEnvelope(t *testing.T) {
	store := newFakeCacheStore()
	seedEnvelope(t, store, domain.EntityChore, domain.CacheSchemaVersion, time.Minute,
		rec("c-1", readerNow))

	reader := newTestReader(store, &fakeRemote{}, true)
	if err := reader.Invalidate(context.Background(), domain.EntityChore); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	key := storeKey(domain.EntityChore, domain.AccessAuthenticated)
	if _, ok := store.envelopes[key]; ok {
		t.Error("envelope survived invalidation")
	}
	if _, ok := store.metadata[key]; ok {
		t.Error("metadata survived invalidation")
	}
}
