package symbol

import (
	"reflect"

	"github.com/ike-plugins/pluginloader/pluginapi"
	"github.com/traefik/yaegi/interp"
)

// Symbols exposes the pluginapi package to interpreted plugin source, in the
// same hand-extracted form Yaegi's own "yaegi extract" tool produces for
// third-party packages. Without this, interpreted source could not name
// pluginapi.Plugin, pluginapi.Descriptor, or the Kind constants — it could
// only build values the host has no contract for.
var Symbols = interp.Exports{
	"github.com/ike-plugins/pluginloader/pluginapi/pluginapi": map[string]reflect.Value{
		"KindProvide":  reflect.ValueOf(pluginapi.KindProvide),
		"KindRegister": reflect.ValueOf(pluginapi.KindRegister),
		"KindCallback": reflect.ValueOf(pluginapi.KindCallback),
		"KindDepends":  reflect.ValueOf(pluginapi.KindDepends),
		"KindSDepend":  reflect.ValueOf(pluginapi.KindSDepend),

		"Plugin":     reflect.ValueOf((*pluginapi.Plugin)(nil)),
		"Descriptor": reflect.ValueOf((*pluginapi.Descriptor)(nil)),
	},
}
