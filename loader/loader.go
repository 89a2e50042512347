// Package loader implements the top-level strongSwan-style plugin loader:
// the Plugin Entry Table, the Load Engine, and the Loaded-Order Stack, tying
// together the feature registry, a symbol resolver, and an optional
// integrity checker behind the pluginapi seam.
//
// Grounded on the teacher's plugin.PluginLoader (entry table + topological
// load orchestration, error wrapping style) and plugin.PluginManager
// (slog-based lifecycle logging, persisted state), adapted from a
// dependency-declaring "engine plugin" model to strongSwan's
// descriptor-driven feature resolution.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/ike-plugins/pluginloader/feature"
	"github.com/ike-plugins/pluginloader/pluginapi"
	"github.com/ike-plugins/pluginloader/pluginconfig"
)

// stats mirrors spec.md's {failed, depends, critical} counters.
type stats struct {
	failed   int
	depends  int
	critical int
}

// Loader owns the Plugin Entry Table, the Feature Registry, and the
// Loaded-Order Stack. Its public methods are not safe for concurrent use
// from multiple goroutines without external synchronization: load_provided's
// transient `loading` flag models synchronous recursive resolution, the same
// single-threaded-cooperative scheduling spec.md §5 specifies (a deliberate
// deviation from the teacher's mutex-guarded PluginManager).
type Loader struct {
	registry *feature.Registry
	entries  []*PluginEntry
	stack    []*feature.Provided // front = most recently loaded

	resolver         pluginapi.SymbolResolver
	checker          pluginapi.IntegrityChecker
	integrityEnabled bool
	leakDetection    bool

	paths *pluginconfig.Paths

	stats         stats
	loadedDisplay string

	logger *slog.Logger
	state  *StateStore
}

// Option configures a Loader at construction time.
type Option func(*Loader)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// WithSearchPaths sets the search-path list used to locate plugin files.
func WithSearchPaths(p *pluginconfig.Paths) Option {
	return func(ld *Loader) { ld.paths = p }
}

// WithIntegrityChecker installs checker and enables integrity checking for
// file-resolved plugins (spec.md §4.1 steps 2-4).
func WithIntegrityChecker(checker pluginapi.IntegrityChecker) Option {
	return func(ld *Loader) {
		ld.checker = checker
		ld.integrityEnabled = true
	}
}

// WithLeakDetection turns on leak-detection mode (spec.md §4.5). Plugin
// entries hold no shared-object handle here, so nothing is retained: Unload
// still destroys every plugin and additionally logs each entry's name and
// path at debug level.
func WithLeakDetection() Option {
	return func(ld *Loader) { ld.leakDetection = true }
}

// WithStateStore attaches a persistence layer recording loaded/critical
// plugin names across restarts (see SPEC_FULL.md §8, loader/state.go).
func WithStateStore(s *StateStore) Option {
	return func(ld *Loader) { ld.state = s }
}

// NewLoader creates an empty Loader. resolver is required; no integrity
// checker is installed (so no integrity checks are made) and search paths
// default to empty unless overridden by options.
func NewLoader(resolver pluginapi.SymbolResolver, opts ...Option) *Loader {
	l := &Loader{
		registry: feature.NewRegistry(),
		resolver: resolver,
		paths:    pluginconfig.NewPaths(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddPath appends path to the loader's search-path list.
func (l *Loader) AddPath(path string) {
	l.paths.Add(path)
}

// RestoreState re-derives a plugin list from the attached StateStore and
// calls Load with it, for a caller that does not have the original
// configuration handy (e.g. after a process restart). Returns false if no
// StateStore is configured.
func (l *Loader) RestoreState() (bool, error) {
	if l.state == nil {
		return false, fmt.Errorf("loader: no state store configured")
	}
	list, err := l.state.RestoreList()
	if err != nil {
		return false, err
	}
	return l.Load(list), nil
}

func (l *Loader) hasEntry(name string) bool {
	for _, e := range l.entries {
		if e.Name == name {
			return true
		}
	}
	return false
}

// AddStatic wraps an externally supplied, already-in-image feature array as
// a synthetic plugin entry (no shared-object handle) and appends it to the
// Plugin Entry Table, registering its features immediately.
func (l *Loader) AddStatic(name string, features []pluginapi.Descriptor, critical bool) error {
	if l.hasEntry(name) {
		return fmt.Errorf("loader: plugin %q already added", name)
	}
	plugin := newStaticPlugin(name, features)
	entry := &PluginEntry{
		Name:         name,
		Plugin:       plugin,
		Critical:     critical,
		featureEntry: &feature.Entry{Name: name, Critical: critical, Plugin: plugin},
	}
	l.entries = append(l.entries, entry)
	l.registerEntryFeatures(entry)
	return nil
}

// registerEntryFeatures iterates entry's descriptor array, tracking the
// sticky REGISTER/CALLBACK context and allocating a Provided Feature for
// each PROVIDE with its trailing DEPENDS/SDEPEND window, per spec.md §4.3.
func (l *Loader) registerEntryFeatures(entry *PluginEntry) {
	descs := entry.Plugin.GetFeatures()
	var reg pluginapi.Descriptor
	for i := 0; i < len(descs); i++ {
		d := descs[i]
		switch d.Kind() {
		case pluginapi.KindRegister, pluginapi.KindCallback:
			reg = d
		case pluginapi.KindProvide:
			j := i + 1
			for j < len(descs) && (descs[j].Kind() == pluginapi.KindDepends || descs[j].Kind() == pluginapi.KindSDepend) {
				j++
			}
			deps := descs[i+1 : j]
			p := l.registry.Register(entry.featureEntry, d, deps, reg)
			entry.provided = append(entry.provided, p)
		}
	}
}

// errKind distinguishes the two resolution error outcomes spec.md §4.1
// names (not-found vs failed) without leaking a Go error-type switch into
// callers that only care about the critical-abort boolean.
type errKind int

const (
	errNotFound errKind = iota
	errFailed
)

type resolveError struct {
	kind errKind
	msg  string
}

func (e *resolveError) Error() string { return e.msg }

// resolveAndConstruct implements the Symbol Resolver algorithm of spec.md
// §4.1: host-image lookup, integrity-gated file fallback, constructor
// invocation.
func (l *Loader) resolveAndConstruct(name string, critical bool) (*PluginEntry, error) {
	symbolName := strings.ReplaceAll(name, "-", "_") + "_plugin_create"

	hostCtor, hostOK := l.resolver.ResolveHost(symbolName)
	if hostOK && !l.integrityEnabled {
		return l.construct(name, "", critical, hostCtor)
	}

	path, found := l.paths.Locate(name)
	if !found {
		return nil, &resolveError{kind: errNotFound, msg: fmt.Sprintf("loader: no constructor symbol for %q", name)}
	}

	if l.integrityEnabled {
		if l.checker == nil || !l.checker.CheckFile(name, path) {
			return nil, &resolveError{kind: errFailed, msg: fmt.Sprintf("loader: file integrity check failed for %q", name)}
		}
	}

	fileCtor, err := l.resolver.ResolveFile(symbolName, path)
	if err != nil {
		return nil, &resolveError{kind: errNotFound, msg: fmt.Sprintf("loader: resolve %q from %s: %v", symbolName, path, err)}
	}

	if l.integrityEnabled {
		addr := reflect.ValueOf(fileCtor).Pointer()
		if l.checker == nil || !l.checker.CheckSegment(name, addr) {
			return nil, &resolveError{kind: errFailed, msg: fmt.Sprintf("loader: segment integrity check failed for %q", name)}
		}
	}

	return l.construct(name, path, critical, fileCtor)
}

func (l *Loader) construct(name, path string, critical bool, ctor pluginapi.Constructor) (*PluginEntry, error) {
	p := ctor(critical)
	if p == nil {
		return nil, &resolveError{kind: errFailed, msg: fmt.Sprintf("loader: constructor for %q returned nil", name)}
	}
	entry := &PluginEntry{Name: name, Plugin: p, Path: path, Critical: critical}
	entry.featureEntry = &feature.Entry{Name: name, Critical: critical, Plugin: p}
	return entry, nil
}

// Load parses a whitespace-separated plugin list (spec.md §6), resolves and
// constructs each not-yet-present plugin, runs the Load Engine over every
// registered feature, purges plugin entries that ended up providing nothing
// loaded, and reports whether any critical plugin failed to instantiate or
// load a critical feature.
func (l *Loader) Load(list string) bool {
	for _, tok := range pluginconfig.ParseList(list) {
		if l.hasEntry(tok.Name) {
			continue
		}
		entry, err := l.resolveAndConstruct(tok.Name, tok.Critical)
		if err != nil {
			l.logger.Warn("plugin construction failed", "plugin", tok.Name, "critical", tok.Critical, "error", err)
			if tok.Critical {
				return false
			}
			continue
		}
		l.entries = append(l.entries, entry)
		l.registerEntryFeatures(entry)
	}

	l.loadFeatures()
	l.purgeEmpty()
	l.rebuildDisplay()

	if l.state != nil {
		if err := l.state.Persist(l.entries); err != nil {
			l.logger.Warn("failed to persist loader state", "error", err)
		}
	}

	return l.stats.critical == 0
}

// loadFeatures is the Load Engine's entry point: iterate the Plugin Entry
// Table in insertion order, and within each entry its Provided Features in
// order, calling load_provided on each.
func (l *Loader) loadFeatures() {
	for _, e := range l.entries {
		for _, p := range e.provided {
			l.loadProvided(p, 0)
		}
	}
}

func (l *Loader) loadProvided(p *feature.Provided, level int) {
	if p.Loaded || p.Failed {
		return
	}
	if p.Loading {
		l.logger.Debug("dependency cycle detected", "feature", p.Feature.String(), "level", level)
		return
	}
	p.Loading = true
	l.loadFeature(p, level+1)
	p.Loading = false
}

func (l *Loader) loadFeature(p *feature.Provided, level int) {
	if !l.loadDependencies(p, level) {
		p.Failed = true
		l.stats.failed++
		l.stats.depends++
		if p.Entry.Critical {
			l.stats.critical++
		}
		return
	}

	if p.Feature.Load(p.Entry.Plugin, p.Reg) {
		p.Loaded = true
		l.stack = append([]*feature.Provided{p}, l.stack...)
		return
	}

	p.Failed = true
	l.stats.failed++
	if p.Entry.Critical {
		l.stats.critical++
	}
}

// loadDependencies walks p's DEPENDS/SDEPEND window, exhausting every
// Registered Feature Record that still has a loadable provider for each
// dependency (equals first, then matches), then checking whether any
// *loaded* provider now satisfies it. SDEPEND failures are soft; DEPENDS
// failures abort with false.
func (l *Loader) loadDependencies(p *feature.Provided, level int) bool {
	for _, d := range p.Deps {
		for {
			rec, ok := l.registry.GetMatch(feature.LoadableFeatureEquals(d))
			if !ok {
				rec, ok = l.registry.GetMatch(feature.LoadableFeatureMatches(d))
			}
			if !ok {
				break
			}
			l.loadRegistered(rec, level)
		}

		if l.registry.HasLoadedMatch(d) {
			continue
		}
		if d.Kind() == pluginapi.KindSDepend {
			l.logger.Debug("soft dependency unmet", "dependency", d.String(), "level", level)
			continue
		}
		return false
	}
	return true
}

func (l *Loader) loadRegistered(rec *feature.Record, level int) {
	for _, p := range rec.Plugins {
		l.loadProvided(p, level)
	}
}

// purgeEmpty destroys and drops every Plugin Entry whose Provided Features
// contain no loaded feature, unregistering all of that entry's Provided
// Features from the Feature Registry first — once the entry is destroyed,
// no registry record may go on pointing at it, whether or not that
// particular feature ever loaded.
func (l *Loader) purgeEmpty() {
	kept := make([]*PluginEntry, 0, len(l.entries))
	for _, e := range l.entries {
		loaded := false
		for _, p := range e.provided {
			if p.Loaded {
				loaded = true
				break
			}
		}
		if loaded {
			kept = append(kept, e)
			continue
		}
		for _, p := range e.provided {
			l.registry.Unregister(p)
		}
		e.Plugin.Destroy()
	}
	l.entries = kept
}

func (l *Loader) rebuildDisplay() {
	names := make([]string, len(l.entries))
	for i, e := range l.entries {
		names[i] = e.Name
	}
	l.loadedDisplay = strings.Join(names, " ")
}

// Unload tears down every loaded feature front-to-back, then destroys every
// Plugin Entry in reverse insertion order, and resets loader state — the
// mirror image of Load. Every Provided Feature still in the registry at
// this point (loaded, via the Loaded-Order Stack; failed, left behind on an
// entry that was kept because one of its other features did load; or never
// attempted, e.g. after a Load that aborted on a critical plugin) is
// unregistered, so Unload leaves the Feature Registry empty, matching
// registration one-for-one.
func (l *Loader) Unload() {
	for _, p := range l.stack {
		p.Feature.Unload(p.Entry.Plugin, p.Reg)
		l.registry.Unregister(p)
	}
	l.stack = nil

	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		for _, p := range e.provided {
			if !p.Loaded {
				l.registry.Unregister(p)
			}
		}
		e.Plugin.Destroy()
		if l.leakDetection {
			l.logger.Debug("retaining handle for leak detection", "plugin", e.Name, "path", e.Path)
		}
	}
	l.entries = nil
	l.loadedDisplay = ""
	l.stats = stats{}
}

// Reload invokes the optional Reload method on every plugin matching list
// (or all plugins if list is empty), and returns how many acknowledged the
// reload. Reload never re-orders features or loads new ones.
func (l *Loader) Reload(list string) int {
	var names map[string]bool
	if list != "" {
		names = make(map[string]bool)
		for _, tok := range pluginconfig.ParseList(list) {
			names[tok.Name] = true
		}
	}

	count := 0
	for _, e := range l.entries {
		if names != nil && !names[e.Name] {
			continue
		}
		if e.Plugin.Reload() {
			count++
		}
	}
	return count
}

// HasFeature reports whether any loaded feature of any plugin matches f.
func (l *Loader) HasFeature(f pluginapi.Descriptor) bool {
	return l.registry.HasLoadedMatch(f)
}

// ProvidersOf returns every Plugin Entry whose feature loaded under the first
// registry record that matches query and has a loaded provider, ordered by
// descending PluginEntry.Version (see feature.SortByVersionDesc) for
// deterministic diagnostic display only — it plays no part in how the Load
// Engine itself picked a provider. Providers under other matching records
// are not included.
func (l *Loader) ProvidersOf(query pluginapi.Descriptor) []*PluginEntry {
	rec, ok := l.registry.GetMatch(feature.LoadedFeatureMatches(query))
	if !ok {
		return nil
	}

	sorted := feature.SortByVersionDesc(rec.Plugins, func(p *feature.Provided) string {
		return l.versionOf(p.Entry.Name)
	})

	out := make([]*PluginEntry, 0, len(sorted))
	for _, p := range sorted {
		if !p.Loaded {
			continue
		}
		if e := l.entryByName(p.Entry.Name); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (l *Loader) entryByName(name string) *PluginEntry {
	for _, e := range l.entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func (l *Loader) versionOf(name string) string {
	if e := l.entryByName(name); e != nil {
		return e.Version
	}
	return ""
}

// LoadedPlugins returns the space-separated display string rebuilt at the
// end of the last successful Load.
func (l *Loader) LoadedPlugins() string {
	return l.loadedDisplay
}

// PluginView is one entry in the plugin enumerator of spec.md §4.6: a
// plugin name paired with only its currently loaded features.
type PluginView struct {
	Name     string
	Features []pluginapi.Descriptor
}

// Enumerate yields (plugin, loaded features) pairs for every entry in the
// Plugin Entry Table, mirroring create_plugin_enumerator.
func (l *Loader) Enumerate() []PluginView {
	out := make([]PluginView, 0, len(l.entries))
	for _, e := range l.entries {
		var feats []pluginapi.Descriptor
		for _, p := range e.provided {
			if p.Loaded {
				feats = append(feats, p.Feature)
			}
		}
		out = append(out, PluginView{Name: e.Name, Features: feats})
	}
	return out
}

// StatusReport is the structured counterpart of status()'s log output, so a
// caller like cmd/pluginctl can render it without scraping log text.
type StatusReport struct {
	Loaded   string
	Failed   int
	Depends  int
	Critical int
}

// Status emits the loaded-plugins display string and, if any feature
// failed, the failure/unmet-dependency counts, both via the loader's
// *slog.Logger at the requested level and as a returned StatusReport.
func (l *Loader) Status(level slog.Level) StatusReport {
	report := StatusReport{
		Loaded:   l.loadedDisplay,
		Failed:   l.stats.failed,
		Depends:  l.stats.depends,
		Critical: l.stats.critical,
	}

	ctx := context.Background()
	l.logger.Log(ctx, level, "loaded plugins", "plugins", report.Loaded)
	if l.stats.failed > 0 {
		l.logger.Log(ctx, level, "plugin load failures", "failed", report.Failed, "unmet_dependencies", report.Depends, "critical", report.Critical)
	}
	return report
}
