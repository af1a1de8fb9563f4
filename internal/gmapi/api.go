package gmapi

import (
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/requests"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/script"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// SelfAlias is the API's own name on itself. No web platform global uses it.
const SelfAlias = "c"

// Loop is the page context's event loop.
type Loop interface {
	// Hold keeps the loop running until the hold is released. Loop
	// goroutine only.
	Hold() Hold
}

// Hold is work the loop waits for that finishes off the loop.
type Hold interface {
	// Post runs fn on the loop. Safe to call from any goroutine. fn is
	// dropped once the run that took the hold has ended.
	Post(fn func())
	// Release lets the loop finish. Later calls do nothing.
	Release()
}

// Env is what capabilities need from the page context.
type Env struct {
	VM        *goja.Runtime
	Loop      Loop
	Bridge    bridge.Poster
	Requests  *requests.Manager
	Resources ResourceSource
	Values    ValueStore
	Host      HostInfo
	Logger    *zap.Logger
	// Log receives GM_log output, after the logger.
	Log func(script, msg string)

	json jsonFuncs
}

// API is the capability object built for one script.
type API struct {
	// Object is the flat namespace: GM_x functions, GM, GM_info,
	// unsafeWindow and the component utils.
	Object *goja.Object
	// GM is the nested GM4 namespace.
	GM   *goja.Object
	Info *goja.Object
	// Granted lists the grants that resolved, in declaration order.
	Granted []Grant

	ctx *contexts
}

// Context returns the script's primary context.
func (a *API) Context() *Context { return a.ctx.primary }

// AsyncContext returns the async twin, or nil when no grant needed it.
func (a *API) AsyncContext() *Context { return a.ctx.twin }

// Wrapper resolves global names for a script that was granted anything.
type Wrapper struct {
	api *goja.Object
}

// Resolve looks name up in the script's API.
func (w *Wrapper) Resolve(name string) (goja.Value, bool) {
	v := w.api.Get(name)
	if v == nil {
		return nil, false
	}
	return v, true
}

// Names lists the names the wrapper resolves.
func (w *Wrapper) Names() []string { return w.api.Keys() }

// Build creates the API for s. The wrapper is nil when no grant resolved,
// which covers an empty list and the lone "none".
func Build(s *script.Script, env *Env) (*API, *Wrapper) {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	if env.Values == nil {
		env.Values = NewMemoryValues()
	}
	vm := env.VM
	if env.json.parse == nil {
		env.json = captureJSON(vm)
	}
	cs := newContexts(s, env)
	info := buildInfo(vm, s, env.Host)

	gm4 := vm.NewObject()
	_ = gm4.Set("info", info)
	gm := vm.NewObject()
	_ = gm.Set("GM", gm4)
	_ = gm.Set("GM_info", info)
	_ = gm.Set("unsafeWindow", vm.GlobalObject())
	installComponentUtils(vm, gm)

	api := &API{Object: gm, GM: gm4, Info: info, ctx: cs}
	for _, name := range s.EffectiveGrants() {
		g := ParseGrant(name)
		if g.Kind == Unresolved {
			continue
		}
		fn := vm.ToValue(g.cap(cs.forGrant(g)))
		if g.GM4 {
			_ = gm4.Set(g.Key, fn)
		} else {
			_ = gm.Set(g.Key, fn)
		}
		api.Granted = append(api.Granted, g)
	}
	if len(api.Granted) == 0 {
		return api, nil
	}
	_ = gm.Set(SelfAlias, gm)
	return api, &Wrapper{api: gm}
}

func installComponentUtils(vm *goja.Runtime, gm *goja.Object) {
	defineAs := func(opts goja.Value) string {
		if goja.IsUndefined(opts) || goja.IsNull(opts) {
			return ""
		}
		v := opts.ToObject(vm).Get("defineAs")
		if v == nil || goja.IsUndefined(v) {
			return ""
		}
		return v.String()
	}
	target := func(v goja.Value) *goja.Object {
		if goja.IsUndefined(v) || goja.IsNull(v) {
			return nil
		}
		return v.ToObject(vm)
	}

	_ = gm.Set("cloneInto", func(call goja.FunctionCall) goja.Value {
		return call.Argument(0)
	})
	_ = gm.Set("exportFunction", func(call goja.FunctionCall) goja.Value {
		fn := call.Argument(0)
		if t, name := target(call.Argument(1)), defineAs(call.Argument(2)); t != nil && name != "" {
			_ = t.Set(name, fn)
		}
		return fn
	})
	_ = gm.Set("createObjectIn", func(call goja.FunctionCall) goja.Value {
		obj := vm.NewObject()
		if t, name := target(call.Argument(0)), defineAs(call.Argument(1)); t != nil && name != "" {
			_ = t.Set(name, obj)
		}
		return obj
	})
}
