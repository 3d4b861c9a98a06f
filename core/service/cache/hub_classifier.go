// Package cache implements the device-side cache engine: the freshness state
// classifier, the cache-first read coordinator and the write-through updater.
package cache

import (
	"time"

	"kitchenhub_server/core/domain"

	"github.com/goccy/go-json"
)

// =============================================================================
// Cache State Classifier
// =============================================================================
//
// Classification is a pure function of metadata, envelope validity and the
// current time. No memoized flags: calling it twice with the same inputs
// always yields the same state.

// EnvelopeProbe is the parse outcome of one stored envelope.
type EnvelopeProbe struct {
	Found         bool
	ParseOK       bool
	SchemaVersion int
	Envelope      *domain.CacheEnvelope
}

// ProbeEnvelope parses and schema-validates raw envelope bytes.
func ProbeEnvelope(raw []byte, found bool) EnvelopeProbe {
	if !found {
		return EnvelopeProbe{}
	}

	var env domain.CacheEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return EnvelopeProbe{Found: true}
	}
	if env.SchemaVersion <= 0 {
		return EnvelopeProbe{Found: true}
	}

	return EnvelopeProbe{
		Found:         true,
		ParseOK:       true,
		SchemaVersion: env.SchemaVersion,
		Envelope:      &env,
	}
}

// Classify maps cache metadata plus envelope validity to a cache state.
func Classify(meta *domain.CacheMetadata, env EnvelopeProbe, now time.Time, th domain.CacheThresholds) domain.CacheState {
	if meta == nil || meta.LastSyncedAt == nil {
		return domain.CacheMissing
	}
	if !env.Found || !env.ParseOK {
		return domain.CacheCorrupt
	}
	if env.SchemaVersion > domain.CacheSchemaVersion {
		return domain.CacheFutureVersion
	}

	age := now.Sub(*meta.LastSyncedAt)
	switch {
	case age < th.Fresh:
		return domain.CacheFresh
	case age < th.Expired:
		return domain.CacheStale
	default:
		return domain.CacheExpired
	}
}
