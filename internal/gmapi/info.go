package gmapi

import (
	"sort"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/script"
	"github.com/dop251/goja"
)

// ScriptHandler identifies this host in GM_info.
const ScriptHandler = "scripthost"

// Version is reported as GM_info.version.
var Version = "1.0.0"

// Platform describes the host as GM_info.platform.
type Platform struct {
	Arch           string
	OS             string
	BrowserName    string
	BrowserVersion string
}

// HostInfo is the host-provided part of GM_info.
type HostInfo struct {
	UUID        string
	InjectInto  string
	IsIncognito bool
	Platform    Platform
}

// buildInfo assembles GM_info and freezes it.
func buildInfo(vm *goja.Runtime, s *script.Script, host HostInfo) *goja.Object {
	m := s.Meta
	resources := make([]interface{}, 0, len(m.Resources))
	for _, r := range m.Resources {
		resources = append(resources, obj(vm, field{"name", r.Name}, field{"url", r.URL}))
	}

	meta := withExtra(vm, m.Extra,
		field{"name", m.Name},
		field{"namespace", m.Namespace},
		field{"version", m.Version},
		field{"description", m.Description},
		field{"runAt", m.RunAt},
		field{"grant", strList(vm, m.Grant)},
		field{"match", strList(vm, m.Match)},
		field{"include", strList(vm, m.Include)},
		field{"exclude", strList(vm, m.Exclude)},
		field{"require", strList(vm, m.Require)},
		field{"resources", freeze(vm, vm.NewArray(resources...))},
	)
	platform := obj(vm,
		field{"arch", host.Platform.Arch},
		field{"os", host.Platform.OS},
		field{"browserName", host.Platform.BrowserName},
		field{"browserVersion", host.Platform.BrowserVersion},
	)
	return obj(vm,
		field{"uuid", host.UUID},
		field{"injectInto", host.InjectInto},
		field{"isIncognito", host.IsIncognito},
		field{"platform", platform},
		field{"script", meta},
		field{"scriptHandler", ScriptHandler},
		field{"version", Version},
	)
}

type field struct {
	name  string
	value interface{}
}

// withExtra is obj plus the meta keys without a dedicated field, sorted. A
// key seen once is a string, a bare flag such as @noframes is true, and a
// repeated key is a list. Named fields win over extras.
func withExtra(vm *goja.Runtime, extra map[string][]string, fields ...field) *goja.Object {
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[f.name] = true
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !taken[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		var v interface{}
		switch vals := extra[k]; {
		case len(vals) == 1 && vals[0] == "":
			v = true
		case len(vals) == 1:
			v = vals[0]
		default:
			v = strList(vm, vals)
		}
		fields = append(fields, field{k, v})
	}
	return obj(vm, fields...)
}

// obj builds a frozen plain object with fields in order.
func obj(vm *goja.Runtime, fields ...field) *goja.Object {
	o := vm.NewObject()
	for _, f := range fields {
		_ = o.Set(f.name, f.value)
	}
	return freeze(vm, o)
}

func strList(vm *goja.Runtime, list []string) *goja.Object {
	items := make([]interface{}, len(list))
	for i, s := range list {
		items[i] = s
	}
	return freeze(vm, vm.NewArray(items...))
}

func freeze(vm *goja.Runtime, o *goja.Object) *goja.Object {
	object := vm.GlobalObject().Get("Object").ToObject(vm)
	if fn, ok := goja.AssertFunction(object.Get("freeze")); ok {
		_, _ = fn(object, o)
	}
	return o
}
