package loader

import (
	"github.com/ike-plugins/pluginloader/feature"
	"github.com/ike-plugins/pluginloader/pluginapi"
)

// PluginEntry is one row of the Plugin Entry Table: a loaded-or-loading
// plugin object together with the Provided Features it registered.
//
// Version and Tags are a Go-port addition (see SPEC_FULL.md §3): they never
// participate in equals/matches dependency resolution. Version is read only
// to order Loader.ProvidersOf output (feature.SortByVersionDesc); Tags is
// not read by the loader.
type PluginEntry struct {
	Name     string
	Plugin   pluginapi.Plugin
	Path     string // non-empty for plugins resolved from a file
	Critical bool
	Version  string
	Tags     []string

	featureEntry *feature.Entry
	provided     []*feature.Provided
}

// staticPlugin wraps an externally supplied, already-in-image feature array
// as a synthetic plugin object with no shared-object handle, matching
// add_static's "wrap" requirement (spec.md §4.2).
type staticPlugin struct {
	name     string
	features []pluginapi.Descriptor
}

func newStaticPlugin(name string, features []pluginapi.Descriptor) *staticPlugin {
	return &staticPlugin{name: name, features: features}
}

func (s *staticPlugin) Name() string                        { return s.name }
func (s *staticPlugin) GetFeatures() []pluginapi.Descriptor { return s.features }
func (s *staticPlugin) Reload() bool                         { return false }
func (s *staticPlugin) Destroy()                             {}
