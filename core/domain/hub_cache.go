package domain

import (
	"encoding/json"
	"time"
)

// =============================================================================
// Device Cache Model
// =============================================================================

// CacheSchemaVersion is the envelope schema this build reads and writes.
// Envelopes written by a newer build classify as future_version and are
// merged, never overwritten.
const CacheSchemaVersion = 2

// CacheEnvelope is the versioned wrapper persisted per (entityType, accessMode).
// Records stay raw JSON: the sync core only inspects id/updatedAt/deletedAt
// and must round-trip fields written by newer schema versions untouched.
type CacheEnvelope struct {
	SchemaVersion int               `json:"schemaVersion"`
	Data          []json.RawMessage `json:"data"`
}

// CacheMetadata tracks freshness per entity type.
type CacheMetadata struct {
	LastSyncedAt *time.Time `json:"lastSyncedAt"`
}

// CacheState classifies one cached collection at read time. The state is a
// pure function of metadata, envelope validity and the current time.
type CacheState string

const (
	CacheMissing       CacheState = "missing"
	CacheFresh         CacheState = "fresh"
	CacheStale         CacheState = "stale"
	CacheExpired       CacheState = "expired"
	CacheCorrupt       CacheState = "corrupt"
	CacheFutureVersion CacheState = "future_version"
)

// CacheThresholds bound the fresh and stale windows.
type CacheThresholds struct {
	Fresh   time.Duration // age below this is fresh
	Expired time.Duration // age at or beyond this is expired
}

// DefaultCacheThresholds mirrors the mobile defaults.
func DefaultCacheThresholds() CacheThresholds {
	return CacheThresholds{
		Fresh:   5 * time.Minute,
		Expired: 24 * time.Hour,
	}
}

// =============================================================================
// Read Results
// =============================================================================

// ReadStatus tags a CacheReadResult.
type ReadStatus string

const (
	ReadOK            ReadStatus = "ok"
	ReadMigrated      ReadStatus = "migrated"       // older schema, upgraded on read
	ReadCorrupt       ReadStatus = "corrupt"        // envelope unusable, data empty
	ReadFutureVersion ReadStatus = "future_version" // newer schema, data best-effort
)

// CacheReadResult is what a coordinator read hands back to the shell.
type CacheReadResult struct {
	Status  ReadStatus        `json:"status"`
	Records []json.RawMessage `json:"records"`
}

// RecordProbe is the minimal slice of any cached record the sync core
// understands. Unknown fields written by newer clients are preserved in the
// raw form and never touched.
type RecordProbe struct {
	ID        string     `json:"id"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// ProbeRecord decodes the identifying fields of one raw cached record.
func ProbeRecord(raw json.RawMessage) (RecordProbe, error) {
	var p RecordProbe
	err := json.Unmarshal(raw, &p)
	return p, err
}
