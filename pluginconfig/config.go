// Package pluginconfig is the configuration surface for the loader: parsing
// the whitespace-delimited plugin list (trailing "!" marks a name critical),
// managing the ordered search-path list and its compile-time default, the
// plugin-directory batch helper, and a viper-backed surrounding
// configuration file for a hosting application.
//
// Grounded on the teacher's plugin.PluginManifest (the "-"→"_" name folding,
// JSON-backed config loading) and elchinoo-stormdb's config.Load
// (viper.SetConfigFile + viper.Unmarshal + a validate pass).
package pluginconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Token is one entry from a parsed plugin list.
type Token struct {
	Name     string
	Critical bool
}

// ParseList splits a whitespace-delimited plugin list into tokens, stripping
// and recording the trailing "!" critical marker on each name.
func ParseList(list string) []Token {
	fields := strings.Fields(list)
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		critical := strings.HasSuffix(f, "!")
		name := strings.TrimSuffix(f, "!")
		if name == "" {
			continue
		}
		tokens = append(tokens, Token{Name: name, Critical: critical})
	}
	return tokens
}

// Paths holds the ordered search-path list and an optional compile-time
// default path, and locates shared-object files by the loader's naming
// convention.
type Paths struct {
	mu      sync.RWMutex
	dirs    []string
	Default string
}

// NewPaths creates an empty search-path list with no default.
func NewPaths() *Paths {
	return &Paths{}
}

// Add appends path to the search-path list.
func (p *Paths) Add(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirs = append(p.dirs, path)
}

// List returns a copy of the configured search paths, in insertion order.
func (p *Paths) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.dirs))
	copy(out, p.dirs)
	return out
}

// FileName returns the shared-object file name for a plugin, following the
// "libstrongswan-<name>.so" convention.
func FileName(name string) string {
	return "libstrongswan-" + name + ".so"
}

// fileExists is a var so tests can stub it without touching the real
// filesystem.
var fileExists = func(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Locate searches the configured paths in order, then the compile-time
// default path if set, for name's shared-object file. Returns the full path
// and true on the first match.
func (p *Paths) Locate(name string) (string, bool) {
	fname := FileName(name)
	for _, dir := range p.List() {
		candidate := filepath.Join(dir, fname)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	if p.Default != "" {
		candidate := filepath.Join(p.Default, fname)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// AddPluginDirs folds each name in a whitespace-delimited plugin list into a
// conventional build-output directory (replacing "-" with "_" the way
// autotools-built strongSwan plugin subdirectories are named) and returns
// the resulting list of <base>/<name>/.libs directories, in list order. The
// caller is expected to feed these into Paths.Add.
func AddPluginDirs(base string, list string) []string {
	tokens := ParseList(list)
	dirs := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		folded := strings.ReplaceAll(tok.Name, "-", "_")
		dirs = append(dirs, filepath.Join(base, folded, ".libs"))
	}
	return dirs
}

// LoaderConfig is the surrounding configuration for a hosting application:
// which plugins to load, where to find them, and whether integrity checking
// is enabled. Loaded from YAML/JSON/TOML via viper, following
// elchinoo-stormdb's config.Load pattern.
type LoaderConfig struct {
	PluginList       string   `mapstructure:"plugin_list"`
	SearchPaths      []string `mapstructure:"search_paths"`
	DefaultPath      string   `mapstructure:"default_path"`
	IntegrityEnabled bool     `mapstructure:"integrity_enabled"`
	StatePath        string   `mapstructure:"state_path"`
}

// Load reads a LoaderConfig from configFile using viper and validates it.
func Load(configFile string) (*LoaderConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configFile, err)
	}

	var cfg LoaderConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", configFile, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", configFile, err)
	}
	return &cfg, nil
}

func validate(cfg *LoaderConfig) error {
	if strings.TrimSpace(cfg.PluginList) == "" {
		return fmt.Errorf("plugin_list must not be empty")
	}
	return nil
}
