package cache

import (
	"context"

	"github.com/goccy/go-json"

	"kitchenhub_server/core/domain"
	"kitchenhub_server/core/port/out"
	"kitchenhub_server/pkg/logger"
)

// =============================================================================
// Write-Through Cache Updater
// =============================================================================
//
// Local mutations land in the cache immediately, best effort. The cache is
// not the system of record: every failure here is soft. Instead of a silent
// catch, each call returns a WriteOutcome the caller (and tests) can inspect.

// WriteStatus tags a write-through outcome.
type WriteStatus string

const (
	WriteApplied     WriteStatus = "applied"
	WriteDuplicate   WriteStatus = "skipped_duplicate" // add of an existing id, no-op
	WriteImplicitAdd WriteStatus = "implicit_add"      // update matched nothing, added instead
	WriteMissing     WriteStatus = "missing"           // remove of an absent id, no-op
	WriteInvalidated WriteStatus = "invalidated"       // persist failed, cache dropped
	WriteFailed      WriteStatus = "failed"            // persist failed, cache left as-is
)

// WriteOutcome reports what a write-through call actually did. Err is set on
// the invalidated and failed paths but is never raised to the caller.
type WriteOutcome struct {
	Status WriteStatus
	Err    error
}

// Writer applies local create/update/delete to the cache envelope.
type Writer struct {
	store    out.CacheStore
	mode     domain.AccessMode
	onChange func(domain.EntityType)
}

// NewWriter creates a write-through updater. onChange may be nil.
func NewWriter(store out.CacheStore, mode domain.AccessMode, onChange func(domain.EntityType)) *Writer {
	return &Writer{
		store:    store,
		mode:     mode,
		onChange: onChange,
	}
}

// AddEntity appends one record. An id already present in the cache is a
// logged no-op: the cache never silently duplicates.
func (w *Writer) AddEntity(ctx context.Context, t domain.EntityType, record json.RawMessage) WriteOutcome {
	p, err := domain.ProbeRecord(record)
	if err != nil || p.ID == "" {
		logger.WithField("entity_type", string(t)).Warn("[CacheWriter] Rejected add of record without a valid id")
		return WriteOutcome{Status: WriteFailed, Err: err}
	}

	env := w.load(ctx, t)
	for _, raw := range env.Data {
		existing, err := domain.ProbeRecord(raw)
		if err == nil && existing.ID == p.ID {
			logger.WithFields(map[string]any{
				"entity_type": string(t),
				"entity_id":   p.ID,
			}).Info("[CacheWriter] Entity already cached, skipping add")
			return WriteOutcome{Status: WriteDuplicate}
		}
	}

	env.Data = append(env.Data, record)
	return w.persist(ctx, t, env, false)
}

// UpdateEntity replaces the record(s) selected by match. Zero matches is an
// implicit add (the entity may originate from a different session); multiple
// matches should not occur given id uniqueness and are all replaced with a
// warning.
func (w *Writer) UpdateEntity(ctx context.Context, t domain.EntityType, record json.RawMessage, match func(domain.RecordProbe) bool) WriteOutcome {
	p, err := domain.ProbeRecord(record)
	if err != nil || p.ID == "" {
		logger.WithField("entity_type", string(t)).Warn("[CacheWriter] Rejected update of record without a valid id")
		return WriteOutcome{Status: WriteFailed, Err: err}
	}
	if match == nil {
		match = func(candidate domain.RecordProbe) bool { return candidate.ID == p.ID }
	}

	env := w.load(ctx, t)

	matches := 0
	for i, raw := range env.Data {
		candidate, err := domain.ProbeRecord(raw)
		if err != nil {
			continue
		}
		if match(candidate) {
			env.Data[i] = record
			matches++
		}
	}

	status := WriteApplied
	switch {
	case matches == 0:
		env.Data = append(env.Data, record)
		status = WriteImplicitAdd
	case matches > 1:
		logger.WithFields(map[string]any{
			"entity_type": string(t),
			"entity_id":   p.ID,
			"matches":     matches,
		}).Warn("[CacheWriter] Update matched multiple records")
	}

	outcome := w.persist(ctx, t, env, true)
	if outcome.Status == WriteApplied {
		outcome.Status = status
	}
	return outcome
}

// RemoveEntity drops the record with the given id.
func (w *Writer) RemoveEntity(ctx context.Context, t domain.EntityType, id string) WriteOutcome {
	env := w.load(ctx, t)

	kept := make([]json.RawMessage, 0, len(env.Data))
	removed := false
	for _, raw := range env.Data {
		p, err := domain.ProbeRecord(raw)
		if err == nil && p.ID == id {
			removed = true
			continue
		}
		kept = append(kept, raw)
	}

	if !removed {
		logger.WithFields(map[string]any{
			"entity_type": string(t),
			"entity_id":   id,
		}).Warn("[CacheWriter] Remove target not in cache")
		return WriteOutcome{Status: WriteMissing}
	}

	env.Data = kept
	return w.persist(ctx, t, env, true)
}

// load reads the current envelope, falling back to an empty one when the
// cache is absent or unparsable. Losing a corrupt envelope is acceptable;
// propagating it is not.
func (w *Writer) load(ctx context.Context, t domain.EntityType) *domain.CacheEnvelope {
	raw, found, err := w.store.GetEnvelope(ctx, t, w.mode)
	if err != nil {
		logger.WithError(err).WithField("entity_type", string(t)).Warn("[CacheWriter] Failed to read envelope")
	}

	probe := ProbeEnvelope(raw, found && err == nil)
	if probe.ParseOK {
		return probe.Envelope
	}
	if probe.Found {
		logger.WithField("entity_type", string(t)).Warn("[CacheWriter] Discarding unparsable envelope")
	}
	return &domain.CacheEnvelope{SchemaVersion: domain.CacheSchemaVersion, Data: []json.RawMessage{}}
}

// persist filters out records lacking a valid identifier, then writes the
// envelope. invalidateOnFailure marks the update paths, where dropping the
// cache beats persisting a potentially inconsistent snapshot.
func (w *Writer) persist(ctx context.Context, t domain.EntityType, env *domain.CacheEnvelope, invalidateOnFailure bool) WriteOutcome {
	valid := make([]json.RawMessage, 0, len(env.Data))
	for _, raw := range env.Data {
		p, err := domain.ProbeRecord(raw)
		if err != nil || p.ID == "" {
			logger.WithField("entity_type", string(t)).Warn("[CacheWriter] Dropping record without a valid id")
			continue
		}
		valid = append(valid, raw)
	}
	env.Data = valid

	data, err := json.Marshal(env)
	if err == nil {
		err = w.store.PutEnvelope(ctx, t, w.mode, data)
	}
	if err != nil {
		logger.WithError(err).WithField("entity_type", string(t)).Warn("[CacheWriter] Cache write failed")
		if invalidateOnFailure {
			if derr := w.store.DeleteMetadata(ctx, t, w.mode); derr != nil {
				logger.WithError(derr).WithField("entity_type", string(t)).
					Warn("[CacheWriter] Cache invalidation failed")
			}
			return WriteOutcome{Status: WriteInvalidated, Err: err}
		}
		return WriteOutcome{Status: WriteFailed, Err: err}
	}

	if w.onChange != nil {
		w.onChange(t)
	}
	return WriteOutcome{Status: WriteApplied}
}
