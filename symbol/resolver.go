// Package symbol implements SymbolResolver: the host-image lookup table for
// statically linked plugins, and a Yaegi-backed equivalent of dlopen+dlsym
// for plugins loaded from source at runtime.
//
// Adapted from dynamic.Loader/InterpreterPool (sandboxed source evaluation)
// and plugin.NativeRegistry (name-keyed, mutex-guarded lookup table), merged
// behind the pluginapi.SymbolResolver seam.
package symbol

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strings"
	"sync"

	"github.com/ike-plugins/pluginloader/pluginapi"
)

// HostRegistry is the "host image": constructors for plugins that are
// statically linked into the running binary, keyed by the same symbol name
// strongSwan would look up with dlsym(RTLD_DEFAULT, ...).
type HostRegistry struct {
	mu   sync.RWMutex
	ctor map[string]pluginapi.Constructor
}

// NewHostRegistry creates an empty host-image symbol table.
func NewHostRegistry() *HostRegistry {
	return &HostRegistry{ctor: make(map[string]pluginapi.Constructor)}
}

// Register binds symbolName to a constructor in the host image. Typically
// called once at process startup for every built-in plugin.
func (h *HostRegistry) Register(symbolName string, ctor pluginapi.Constructor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctor[symbolName] = ctor
}

// Get looks up symbolName, reporting whether it is bound.
func (h *HostRegistry) Get(symbolName string) (pluginapi.Constructor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.ctor[symbolName]
	return c, ok
}

// Resolver implements pluginapi.SymbolResolver against a host registry for
// statically linked plugins and a sandboxed interpreter pool for plugins
// loaded from a path.
type Resolver struct {
	host *HostRegistry
	pool *InterpreterPool
}

// NewResolver builds a Resolver. host may be nil if no plugin is ever
// statically linked; pool may be nil if ResolveFile is never used.
func NewResolver(host *HostRegistry, pool *InterpreterPool) *Resolver {
	return &Resolver{host: host, pool: pool}
}

// ResolveHost satisfies pluginapi.SymbolResolver.
func (r *Resolver) ResolveHost(symbolName string) (pluginapi.Constructor, bool) {
	if r.host == nil {
		return nil, false
	}
	return r.host.Get(symbolName)
}

// ValidateSource checks source against the two things the loader can
// verify before ever handing it to an interpreter: that it imports only
// sandbox-allowed packages, and that it actually declares requiredSymbol
// (the "<name>_plugin_create" constructor resolveAndConstruct is about to
// look up) as a top-level function. The second check is what makes this
// more than an import filter — a source file that merely parses and
// imports cleanly but never defines the constructor the loader needs would
// otherwise fail later, inside the interpreter, with a far less specific
// error.
func ValidateSource(source, requiredSymbol string) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "plugin.go", source, parser.AllErrors)
	if err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}

	for _, imp := range f.Imports {
		pkg := strings.Trim(imp.Path.Value, `"`)
		if !IsPackageAllowed(pkg) {
			return fmt.Errorf("import %q is not allowed in plugin source", pkg)
		}
	}

	if requiredSymbol != "" && !declaresFunc(f, requiredSymbol) {
		return fmt.Errorf("plugin source does not declare constructor %q", requiredSymbol)
	}
	return nil
}

func declaresFunc(f *ast.File, name string) bool {
	for _, decl := range f.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Name.Name == name {
			return true
		}
	}
	return false
}

// ResolveFile reads the .go source at path, validates its imports, evaluates
// it in a fresh sandboxed interpreter, and resolves symbolName as a
// func(bool) pluginapi.Plugin value — the interpreted equivalent of
// dlopen(path) followed by dlsym(handle, symbolName).
func (r *Resolver) ResolveFile(symbolName, path string) (pluginapi.Constructor, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("symbol: no interpreter pool configured, cannot resolve %s from %s", symbolName, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	source := string(data)
	if err := ValidateSource(source, symbolName); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}

	i, err := r.pool.NewInterpreter()
	if err != nil {
		return nil, err
	}
	if _, err := i.Eval(source); err != nil {
		return nil, fmt.Errorf("eval %s: %w", path, err)
	}

	v, err := i.Eval(symbolName)
	if err != nil {
		return nil, fmt.Errorf("symbol %s not found in %s: %w", symbolName, path, err)
	}
	ctor, ok := v.Interface().(func(bool) pluginapi.Plugin)
	if !ok {
		return nil, fmt.Errorf("symbol %s in %s does not have signature func(bool) pluginapi.Plugin", symbolName, path)
	}
	return pluginapi.Constructor(ctor), nil
}
