package symbol

import (
	"fmt"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// InterpreterPool hands out sandboxed Yaegi interpreters pre-loaded with the
// standard library symbols and the pluginapi types, so interpreted plugin
// source can implement pluginapi.Plugin without the host ever calling out to
// cgo or dlopen. Adapted from dynamic.InterpreterPool.
type InterpreterPool struct {
	mu     sync.Mutex
	goPath string
}

// Option configures an InterpreterPool.
type Option func(*InterpreterPool)

// WithGoPath sets the GOPATH interpreters resolve imports against.
func WithGoPath(path string) Option {
	return func(p *InterpreterPool) { p.goPath = path }
}

// NewInterpreterPool creates a pool with optional configuration.
func NewInterpreterPool(opts ...Option) *InterpreterPool {
	p := &InterpreterPool{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewInterpreter creates a fresh interpreter with the stdlib and pluginapi
// symbol tables loaded. Package admission is enforced separately by
// ValidateSource before source ever reaches Eval.
func (p *InterpreterPool) NewInterpreter() (*interp.Interpreter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	opts := interp.Options{}
	if p.goPath != "" {
		opts.GoPath = p.goPath
	}

	i := interp.New(opts)
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("load pluginapi symbols: %w", err)
	}
	return i, nil
}
