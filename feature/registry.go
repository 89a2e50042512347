// Package feature implements the Feature Registry: the mapping from a
// canonical feature descriptor to the set of plugins that provide it, plus
// the exact- and fuzzy-matching lookups the Load Engine depends on.
//
// Adapted from the teacher's capability.Registry (map of capability name to
// provider list, guarded by a single RWMutex, "resolve highest priority
// provider" pattern) generalized from a name-keyed map to a Descriptor-keyed
// one so that Equals/Hash are owned by the descriptor rather than assumed to
// be plain strings.
package feature

import (
	"sync"

	"github.com/ike-plugins/pluginloader/pluginapi"
)

// Provided is one plugin's offer of one capability: a PROVIDE descriptor
// plus the DEPENDS/SDEPEND window that follows it and the sticky
// REGISTER/CALLBACK context that preceded it.
type Provided struct {
	Entry *Entry // back-reference, non-owning

	// Feature is the PROVIDE descriptor. Deps holds the contiguous
	// DEPENDS/SDEPEND descriptors that followed it in the plugin's
	// descriptor array.
	Feature pluginapi.Descriptor
	Deps    []pluginapi.Descriptor

	// Reg is the most recent REGISTER/CALLBACK descriptor seen before this
	// PROVIDE, or nil.
	Reg pluginapi.Descriptor

	Loading bool
	Loaded  bool
	Failed  bool
}

// Entry is the minimal view of a plugin entry that the registry needs; the
// full Plugin Entry Table lives in package loader, which embeds *Entry
// values built from its own PluginEntry type. Keeping this here (rather
// than importing loader) avoids an import cycle between loader and feature.
type Entry struct {
	Name     string
	Critical bool
	Plugin   pluginapi.Plugin
}

// Record is a Registered Feature Record: the canonical descriptor used for
// matching, and every Provided Feature (from distinct plugin entries) that
// offers a capability equal to it.
type Record struct {
	Feature pluginapi.Descriptor
	Plugins []*Provided

	// canonical is whichever *Provided last supplied Feature. Descriptor
	// implementations are treated as opaque and are never guaranteed to be
	// comparable with == (one carrying a slice or map field would panic if
	// compared that way), so identity is tracked through this pointer
	// instead of comparing Feature values directly.
	canonical *Provided
}

// Registry owns the Descriptor -> Record mapping. It is not safe for
// concurrent mutation from the Load Engine (which is explicitly
// single-threaded cooperative, per the loader's concurrency model) but
// exposes a mutex so that introspection methods (All, GetExact) can be
// called from a hosting application's own goroutines between load passes.
type Registry struct {
	mu      sync.RWMutex
	records []*Record
}

// NewRegistry creates an empty feature registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// GetExact performs the registry's exact lookup, a linear scan by Equals
// (Hash is not consulted): the first record whose canonical feature is
// bit-for-bit Equals to key.
func (r *Registry) GetExact(key pluginapi.Descriptor) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.Feature.Equals(key) {
			return rec, true
		}
	}
	return nil, false
}

// getOrInsert returns the record keyed by an Equals-match to key, creating
// one if none exists yet.
func (r *Registry) getOrInsert(key pluginapi.Descriptor) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Feature.Equals(key) {
			return rec
		}
	}
	rec := &Record{Feature: key}
	r.records = append(r.records, rec)
	return rec
}

// Register allocates a Provided Feature for (entry, feature, deps, reg) and
// appends it to the Registered Feature Record keyed by feature, inserting a
// new record if this is the first provider of that capability.
func (r *Registry) Register(entry *Entry, featureDesc pluginapi.Descriptor, deps []pluginapi.Descriptor, reg pluginapi.Descriptor) *Provided {
	p := &Provided{
		Entry:   entry,
		Feature: featureDesc,
		Deps:    deps,
		Reg:     reg,
	}
	rec := r.getOrInsert(featureDesc)
	r.mu.Lock()
	if rec.canonical == nil {
		rec.canonical = p
	}
	rec.Plugins = append(rec.Plugins, p)
	r.mu.Unlock()
	return p
}

// Unregister removes p from its Registered Feature Record. If the record
// becomes empty it is dropped from the registry; otherwise, if p was the
// provider that supplied the record's canonical descriptor (tracked via
// rec.canonical, a *Provided pointer, never by comparing Descriptor values),
// the record is rebound to the first remaining provider so that later
// lookups keep working (see DESIGN.md open-question on rebinding).
func (r *Registry) Unregister(p *Provided) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ri, rec := range r.records {
		idx := -1
		for i, cand := range rec.Plugins {
			if cand == p {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}

		rebind := rec.canonical == p
		rec.Plugins = append(rec.Plugins[:idx], rec.Plugins[idx+1:]...)

		switch {
		case len(rec.Plugins) == 0:
			r.records = append(r.records[:ri], r.records[ri+1:]...)
		case rebind:
			rec.Feature = rec.Plugins[0].Feature
			rec.canonical = rec.Plugins[0]
		}
		return
	}
}

// Predicate decides whether a candidate Record satisfies a lookup. The
// get_match family below are the only predicates the loader needs; hosting
// code may define its own for introspection.
type Predicate func(rec *Record) bool

// GetMatch performs the linear scan lookup used throughout the Load Engine:
// the first record for which pred returns true.
func (r *Registry) GetMatch(pred Predicate) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if pred(rec) {
			return rec, true
		}
	}
	return nil, false
}

func isLoadable(p *Provided) bool {
	return !p.Loading && !p.Loaded && !p.Failed
}

// LoadedFeatureMatches reports whether rec's canonical feature Matches query
// and at least one of its providers is currently Loaded.
func LoadedFeatureMatches(query pluginapi.Descriptor) Predicate {
	return func(rec *Record) bool {
		if !rec.Feature.Matches(query) {
			return false
		}
		for _, p := range rec.Plugins {
			if p.Loaded {
				return true
			}
		}
		return false
	}
}

// LoadableFeatureEquals reports whether rec's canonical feature Equals query
// and at least one of its providers is loadable (not loading/loaded/failed).
func LoadableFeatureEquals(query pluginapi.Descriptor) Predicate {
	return func(rec *Record) bool {
		if !rec.Feature.Equals(query) {
			return false
		}
		return hasLoadable(rec)
	}
}

// LoadableFeatureMatches is LoadableFeatureEquals with Matches instead of
// Equals.
func LoadableFeatureMatches(query pluginapi.Descriptor) Predicate {
	return func(rec *Record) bool {
		if !rec.Feature.Matches(query) {
			return false
		}
		return hasLoadable(rec)
	}
}

func hasLoadable(rec *Record) bool {
	for _, p := range rec.Plugins {
		if isLoadable(p) {
			return true
		}
	}
	return false
}

// HasLoadedMatch reports whether any registered record has a loaded
// provider matching query — the primitive behind Loader.HasFeature.
func (r *Registry) HasLoadedMatch(query pluginapi.Descriptor) bool {
	_, ok := r.GetMatch(LoadedFeatureMatches(query))
	return ok
}

// All returns every record currently in the registry, for status/introspection.
func (r *Registry) All() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Record, len(r.records))
	copy(out, r.records)
	return out
}
