package feature

import (
	"sort"

	"github.com/launchdarkly/go-semver"
)

// VersionOf extracts a diagnostic version string for a Provided Feature's
// owning plugin entry. feature has no notion of versions on its own — the
// loader supplies this indirection from its own PluginEntry.Version.
type VersionOf func(p *Provided) string

// SortByVersionDesc orders a slice of Provided Features by descending parsed
// semver, breaking ties only among providers that GetMatch already
// considers equally suitable (see SPEC_FULL.md §4.3). This never feeds back
// into GetMatch's equals-over-matches / configured-order resolution; it
// exists solely to make status/diagnostic output deterministic when
// versions are present. Providers with an unparsable or empty version sort
// last, in their original relative order.
func SortByVersionDesc(plugins []*Provided, versionOf VersionOf) []*Provided {
	out := make([]*Provided, len(plugins))
	copy(out, plugins)

	sort.SliceStable(out, func(i, j int) bool {
		vi, erri := semver.Parse(versionOf(out[i]))
		vj, errj := semver.Parse(versionOf(out[j]))
		switch {
		case erri != nil && errj != nil:
			return false
		case erri != nil:
			return false
		case errj != nil:
			return true
		default:
			return vi.ComparePrecedence(vj) > 0
		}
	})
	return out
}
