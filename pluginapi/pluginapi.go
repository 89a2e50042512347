// Package pluginapi declares the narrow contracts the loader consumes from
// its external collaborators: the plugin object itself, the feature
// descriptors it advertises, the optional integrity checker, and the symbol
// resolver that turns a plugin name into a constructor. None of these are
// implemented by the loader — they are the seams a host library plugs into.
package pluginapi

import "fmt"

// Kind classifies a feature descriptor the way strongSwan's plugin_feature_t
// does: PROVIDE introduces a capability, REGISTER/CALLBACK describe how to
// reach the underlying implementation, and DEPENDS/SDEPEND declare what a
// PROVIDE needs before it can load.
type Kind int

const (
	KindProvide Kind = iota
	KindRegister
	KindCallback
	KindDepends
	KindSDepend
)

func (k Kind) String() string {
	switch k {
	case KindProvide:
		return "PROVIDE"
	case KindRegister:
		return "REGISTER"
	case KindCallback:
		return "CALLBACK"
	case KindDepends:
		return "DEPENDS"
	case KindSDepend:
		return "SDEPEND"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Descriptor is an opaque capability identifier. equals/matches/hash are
// owned entirely by the descriptor implementation — the loader treats them
// as black boxes and only requires that Equals(a, b) implies Matches(a, b).
type Descriptor interface {
	Kind() Kind
	Hash() uint32
	Equals(other Descriptor) bool
	Matches(other Descriptor) bool
	String() string

	// Load invokes the feature's registration action. reg is the most
	// recent REGISTER/CALLBACK descriptor preceding this PROVIDE, or nil.
	Load(p Plugin, reg Descriptor) bool

	// Unload invokes the feature's teardown action. Must be safe to call
	// exactly once per successful Load.
	Unload(p Plugin, reg Descriptor) bool
}

// Plugin is the contract a loaded plugin object exposes. GetFeatures and
// Reload are optional in the sense that a plugin may return nil/false; the
// loader never requires a specific implementation beyond this interface.
type Plugin interface {
	Name() string
	GetFeatures() []Descriptor
	Reload() bool
	Destroy()
}

// Constructor produces a Plugin instance, mirroring the
// "<name>_plugin_create" symbol strongSwan resolves dynamically. A nil
// return signals constructor failure.
type Constructor func(critical bool) Plugin

// IntegrityChecker is consulted before a shared-object-equivalent source is
// opened, and again after its constructor symbol is resolved. Absent when
// integrity checking is not configured (see integrity.Null).
type IntegrityChecker interface {
	CheckFile(name, path string) bool
	CheckSegment(name string, symbolAddr uintptr) bool
}

// SymbolResolver resolves a plugin's constructor either from the host image
// (statically linked / already in-process) or from a named file, mirroring
// dlsym against the running image vs. dlopen+dlsym against a shared object.
type SymbolResolver interface {
	ResolveHost(symbolName string) (Constructor, bool)
	ResolveFile(symbolName, path string) (Constructor, error)
}
