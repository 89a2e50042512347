// Command pluginctl is a small terminal front end for the strongSwan-style
// plugin loader: it drives load/status/unload/reload against an in-process
// Loader wired with a handful of demonstration plugins registered via
// add_static. It is a demonstration harness, not a production daemon — see
// SPEC_FULL.md §8.
//
// Grounded on elchinoo-stormdb's cobra/viper root-command wiring
// (cmd/stormdb/main.go): a single root command, flags bound to local
// variables, RunE doing the work.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ike-plugins/pluginloader/integrity"
	"github.com/ike-plugins/pluginloader/loader"
	"github.com/ike-plugins/pluginloader/pluginapi"
	"github.com/ike-plugins/pluginloader/pluginconfig"
	"github.com/ike-plugins/pluginloader/symbol"
	"github.com/spf13/cobra"
)

// demoDescriptor is a minimal, self-contained pluginapi.Descriptor used by
// the bundled demo plugins: two descriptors are equal when their feature
// name matches exactly, regardless of Kind (Kind labels a descriptor's role
// in a plugin's array, not its identity — see loader's test descriptors for
// the same rule).
type demoDescriptor struct {
	kind pluginapi.Kind
	name string
}

func (d demoDescriptor) Kind() pluginapi.Kind { return d.kind }
func (d demoDescriptor) Hash() uint32 {
	h := uint32(2166136261)
	for _, c := range d.name {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}
func (d demoDescriptor) Equals(o pluginapi.Descriptor) bool {
	y, ok := o.(demoDescriptor)
	return ok && y.name == d.name
}
func (d demoDescriptor) Matches(o pluginapi.Descriptor) bool {
	y, ok := o.(demoDescriptor)
	return ok && (d.name == "*" || y.name == "*" || d.name == y.name)
}
func (d demoDescriptor) String() string { return d.kind.String() + ":" + d.name }
func (d demoDescriptor) Load(p pluginapi.Plugin, reg pluginapi.Descriptor) bool {
	slog.Info("feature loaded", "plugin", p.Name(), "feature", d.name)
	return true
}
func (d demoDescriptor) Unload(p pluginapi.Plugin, reg pluginapi.Descriptor) bool {
	slog.Info("feature unloaded", "plugin", p.Name(), "feature", d.name)
	return true
}

func provide(name string) demoDescriptor { return demoDescriptor{kind: pluginapi.KindProvide, name: name} }
func depends(name string) demoDescriptor { return demoDescriptor{kind: pluginapi.KindDepends, name: name} }

// newDemoLoader builds a Loader pre-populated with two static demo plugins:
// "random" (provides RNG) and "hasher" (provides HASH, depends on RNG) —
// enough to exercise dependency resolution end to end from the CLI.
func newDemoLoader(integrityEnabled bool) *loader.Loader {
	opts := []loader.Option{loader.WithLogger(slog.Default())}
	if integrityEnabled {
		opts = append(opts, loader.WithIntegrityChecker(integrity.NewCosignChecker(
			"https://github.com/ike-plugins/.*", "https://github.com/ike-plugins/.*",
		)))
	} else {
		opts = append(opts, loader.WithIntegrityChecker(integrity.Null{}))
	}

	host := symbol.NewHostRegistry()
	resolver := symbol.NewResolver(host, symbol.NewInterpreterPool())
	l := loader.NewLoader(resolver, opts...)

	_ = l.AddStatic("random", []pluginapi.Descriptor{provide("RNG")}, true)
	_ = l.AddStatic("hasher", []pluginapi.Descriptor{provide("HASH"), depends("RNG")}, false)
	return l
}

func main() {
	var (
		configFile       string
		integrityEnabled bool
	)

	rootCmd := &cobra.Command{
		Use:   "pluginctl",
		Short: "Drive the strongSwan-style plugin loader from a terminal",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "optional loader config file (YAML/JSON/TOML)")
	rootCmd.PersistentFlags().BoolVar(&integrityEnabled, "integrity", false, "enable cosign-backed integrity checking")

	loadCmd := &cobra.Command{
		Use:   "load [plugin-list]",
		Short: "Load the given plugin list (or the configured one)",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := resolvePluginList(configFile, args)
			if err != nil {
				return err
			}
			l := newDemoLoader(integrityEnabled)
			if !l.Load(list) {
				return fmt.Errorf("pluginctl: critical plugin failed to load")
			}
			fmt.Println("loaded:", l.LoadedPlugins())
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status [plugin-list]",
		Short: "Load the given plugin list and print a status report",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := resolvePluginList(configFile, args)
			if err != nil {
				return err
			}
			l := newDemoLoader(integrityEnabled)
			l.Load(list)
			report := l.Status(slog.LevelInfo)
			fmt.Printf("loaded: %s\nfailed: %d\ndepends: %d\ncritical: %d\n",
				report.Loaded, report.Failed, report.Depends, report.Critical)
			return nil
		},
	}

	unloadCmd := &cobra.Command{
		Use:   "unload [plugin-list]",
		Short: "Load then immediately unload the given plugin list",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := resolvePluginList(configFile, args)
			if err != nil {
				return err
			}
			l := newDemoLoader(integrityEnabled)
			l.Load(list)
			l.Unload()
			fmt.Println("unloaded")
			return nil
		},
	}

	reloadCmd := &cobra.Command{
		Use:   "reload [plugin-list]",
		Short: "Load the given plugin list, then reload every loaded plugin",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := resolvePluginList(configFile, args)
			if err != nil {
				return err
			}
			l := newDemoLoader(integrityEnabled)
			l.Load(list)
			count := l.Reload("")
			fmt.Printf("reloaded %d plugin(s)\n", count)
			return nil
		},
	}

	rootCmd.AddCommand(loadCmd, statusCmd, unloadCmd, reloadCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolvePluginList prefers an explicit CLI argument, falling back to
// plugin_list in configFile (via pluginconfig.Load/viper) if one was given.
func resolvePluginList(configFile string, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if configFile == "" {
		return "random! hasher", nil
	}
	cfg, err := pluginconfig.Load(configFile)
	if err != nil {
		return "", err
	}
	return cfg.PluginList, nil
}
