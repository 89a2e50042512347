package feature

import (
	"testing"

	"github.com/ike-plugins/pluginloader/pluginapi"
)

// testDescriptor is a minimal pluginapi.Descriptor for registry tests: two
// descriptors are Equal if kind+name match exactly, and Match if kind
// matches and either name is "*" (wildcard) or the names match.
type testDescriptor struct {
	kind pluginapi.Kind
	name string
}

func (d testDescriptor) Kind() pluginapi.Kind { return d.kind }
func (d testDescriptor) Hash() uint32 {
	h := uint32(2166136261)
	for _, c := range d.name {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}
func (d testDescriptor) Equals(other pluginapi.Descriptor) bool {
	o, ok := other.(testDescriptor)
	return ok && o.kind == d.kind && o.name == d.name
}
func (d testDescriptor) Matches(other pluginapi.Descriptor) bool {
	o, ok := other.(testDescriptor)
	if !ok || o.kind != d.kind {
		return false
	}
	return d.name == "*" || o.name == "*" || d.name == o.name
}
func (d testDescriptor) String() string                                { return string(d.kind.String()) + ":" + d.name }
func (d testDescriptor) Load(pluginapi.Plugin, pluginapi.Descriptor) bool   { return true }
func (d testDescriptor) Unload(pluginapi.Plugin, pluginapi.Descriptor) bool { return true }

func provide(name string) testDescriptor { return testDescriptor{kind: pluginapi.KindProvide, name: name} }

func TestRegisterAndGetExact(t *testing.T) {
	r := NewRegistry()
	entry := &Entry{Name: "db-sqlite"}
	p := r.Register(entry, provide("db-sqlite"), nil, nil)
	if p.Entry != entry {
		t.Fatal("expected Provided.Entry to back-reference the passed entry")
	}

	rec, ok := r.GetExact(provide("db-sqlite"))
	if !ok {
		t.Fatal("expected exact match for registered feature")
	}
	if len(rec.Plugins) != 1 || rec.Plugins[0] != p {
		t.Fatalf("expected record to contain exactly the registered provider, got %v", rec.Plugins)
	}
}

func TestRegisterTwoProvidersSameKey(t *testing.T) {
	r := NewRegistry()
	a := r.Register(&Entry{Name: "a"}, provide("db-sqlite"), nil, nil)
	b := r.Register(&Entry{Name: "b"}, provide("db-sqlite"), nil, nil)

	rec, ok := r.GetExact(provide("db-sqlite"))
	if !ok {
		t.Fatal("expected record to exist")
	}
	if len(rec.Plugins) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(rec.Plugins))
	}
	if rec.Plugins[0] != a || rec.Plugins[1] != b {
		t.Fatal("expected providers in registration order")
	}
}

func TestFuzzyMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&Entry{Name: "b"}, provide("db-sqlite"), nil, nil)

	rec, ok := r.GetMatch(LoadableFeatureMatches(provide("*")))
	if !ok {
		t.Fatal("expected wildcard query to match the concrete provider via Matches")
	}
	if !rec.Feature.Equals(provide("db-sqlite")) {
		t.Fatalf("expected matched record to be db-sqlite, got %v", rec.Feature)
	}

	if _, ok := r.GetMatch(LoadableFeatureEquals(provide("*"))); ok {
		t.Fatal("wildcard query must not satisfy an Equals-based lookup")
	}
}

func TestUnregisterRebindsCanonicalFeature(t *testing.T) {
	r := NewRegistry()
	key := provide("db-sqlite")
	a := r.Register(&Entry{Name: "a"}, key, nil, nil)
	b := r.Register(&Entry{Name: "b"}, key, nil, nil)

	r.Unregister(a)

	rec, ok := r.GetExact(key)
	if !ok {
		t.Fatal("record should survive while b is still registered")
	}
	if len(rec.Plugins) != 1 || rec.Plugins[0] != b {
		t.Fatalf("expected only b to remain, got %v", rec.Plugins)
	}

	r.Unregister(b)
	if _, ok := r.GetExact(key); ok {
		t.Fatal("record should be removed once its last provider is unregistered")
	}
}

func TestLoadableExcludesLoadingLoadedFailed(t *testing.T) {
	r := NewRegistry()
	p := r.Register(&Entry{Name: "a"}, provide("x"), nil, nil)

	if _, ok := r.GetMatch(LoadableFeatureEquals(provide("x"))); !ok {
		t.Fatal("fresh provider should be loadable")
	}

	p.Loaded = true
	if _, ok := r.GetMatch(LoadableFeatureEquals(provide("x"))); ok {
		t.Fatal("loaded provider must not be reported as loadable")
	}
	if !r.HasLoadedMatch(provide("x")) {
		t.Fatal("loaded provider should satisfy HasLoadedMatch")
	}
}
