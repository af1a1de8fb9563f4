package gmapi

import (
	"strings"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/requests"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var xhrEvents = []string{
	bridge.EventLoadStart,
	bridge.EventProgress,
	bridge.EventReadyStateChange,
	bridge.EventLoad,
	bridge.EventError,
	bridge.EventTimeout,
	bridge.EventAbort,
	bridge.EventLoadEnd,
}

func nullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func propString(o *goja.Object, name string) string {
	v := o.Get(name)
	if nullish(v) {
		return ""
	}
	return v.String()
}

func xmlHTTPRequest(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		vm := c.env.VM
		opts := call.Argument(0).ToObject(vm)
		d := c.details(opts)

		var resolve, reject func(goja.Value)
		var promise *goja.Promise
		if c.Async {
			p, res, rej := vm.NewPromise()
			promise = p
			resolve = func(v goja.Value) { res(v) }
			reject = func(v goja.Value) { rej(v) }
		}

		var cached goja.Value
		hold := c.env.Loop.Hold()
		d.On = make(map[string]requests.Callback, len(xhrEvents))
		for _, ev := range xhrEvents {
			fn, hasFn := goja.AssertFunction(opts.Get("on" + ev))
			settles := c.Async && (ev == bridge.EventLoad || ev == bridge.EventError || ev == bridge.EventTimeout || ev == bridge.EventAbort)
			terminal := ev == bridge.EventLoadEnd
			if !hasFn && !settles && !terminal {
				continue
			}
			d.On[ev] = func(e *requests.Event) {
				hold.Post(func() {
					if terminal {
						defer hold.Release()
					}
					if e.Response != nil && cached == nil {
						cached = responseValue(vm, e.Response)
					}
					v := c.eventValue(e, cached)
					if hasFn {
						if _, err := fn(opts, v); err != nil {
							c.env.Logger.Warn("xhr callback failed", zap.String("script", c.DisplayName), zap.String("event", ev), zap.Error(err))
						}
					}
					if settles {
						if ev == bridge.EventLoad {
							resolve(v)
						} else {
							reject(v)
						}
					}
				})
			}
		}

		h := c.env.Requests.Create(d)
		abort := func(goja.FunctionCall) goja.Value {
			h.Abort()
			return goja.Undefined()
		}
		if promise != nil {
			pv := vm.ToValue(promise).ToObject(vm)
			_ = pv.Set("abort", abort)
			return pv
		}
		control := vm.NewObject()
		_ = control.Set("abort", abort)
		return control
	}
}

func (c *Context) details(o *goja.Object) *requests.Details {
	d := &requests.Details{
		Method:           strings.ToUpper(propString(o, "method")),
		URL:              propString(o, "url"),
		User:             propString(o, "user"),
		Password:         propString(o, "password"),
		OverrideMimeType: propString(o, "overrideMimeType"),
		ResponseType:     propString(o, "responseType"),
	}
	if d.Method == "" {
		d.Method = "GET"
	}
	if v := o.Get("anonymous"); !nullish(v) {
		d.Anonymous = v.ToBoolean()
	}
	if v := o.Get("timeout"); !nullish(v) {
		d.Timeout = v.ToInteger()
	}
	if v := o.Get("headers"); !nullish(v) {
		ho := v.ToObject(c.env.VM)
		d.Headers = make(map[string]string)
		for _, k := range ho.Keys() {
			d.Headers[k] = ho.Get(k).String()
		}
	}
	if v := o.Get("context"); v != nil && !goja.IsUndefined(v) {
		d.Context = v
	}
	d.Data = bodyValue(o.Get("data"))
	return d
}

func bodyValue(v goja.Value) interface{} {
	if nullish(v) {
		return nil
	}
	if ab, ok := v.Export().(goja.ArrayBuffer); ok {
		return ab.Bytes()
	}
	return v.Export()
}

func responseValue(vm *goja.Runtime, v interface{}) goja.Value {
	switch x := v.(type) {
	case []byte:
		return vm.ToValue(vm.NewArrayBuffer(x))
	case *requests.Blob:
		b := vm.NewObject()
		_ = b.Set("type", x.Type)
		_ = b.Set("size", len(x.Data))
		_ = b.Set("buffer", vm.NewArrayBuffer(x.Data))
		return b
	default:
		return vm.ToValue(x)
	}
}

func (c *Context) eventValue(e *requests.Event, response goja.Value) goja.Value {
	o := c.env.VM.NewObject()
	_ = o.Set("readyState", e.ReadyState)
	_ = o.Set("status", e.Status)
	_ = o.Set("statusText", e.StatusText)
	_ = o.Set("responseHeaders", e.ResponseHeaders)
	_ = o.Set("finalUrl", e.FinalURL)
	_ = o.Set("lengthComputable", e.LengthComputable)
	_ = o.Set("loaded", e.Loaded)
	_ = o.Set("total", e.Total)
	if response == nil {
		response = goja.Null()
	}
	_ = o.Set("response", response)
	if s, ok := e.Response.(string); ok {
		_ = o.Set("responseText", s)
	}
	if e.Error != "" {
		_ = o.Set("error", e.Error)
	}
	if v, ok := e.Context.(goja.Value); ok {
		_ = o.Set("context", v)
	}
	return o
}

func getResourceText(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return c.result(c.resource(call.Argument(0).String(), "text:", func(r Resource) goja.Value {
			return c.env.VM.ToValue(string(r.Data))
		}))
	}
}

func getResourceURL(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return c.result(c.resource(call.Argument(0).String(), "url:", func(r Resource) goja.Value {
			ct := r.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			return c.env.VM.ToValue(requests.EncodeDataURL(ct, r.Data))
		}))
	}
}

// resource resolves a named resource through the context's cache.
func (c *Context) resource(name, kind string, convert func(Resource) goja.Value) goja.Value {
	url, ok := c.Resources[name]
	if !ok || c.env.Resources == nil {
		return goja.Undefined()
	}
	key := kind + name
	if v, ok := c.ResCache[key]; ok {
		return v
	}
	r, ok := c.env.Resources.Resource(url)
	if !ok {
		return goja.Undefined()
	}
	v := convert(r)
	c.ResCache[key] = v
	return v
}

func gmLog(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		msg := strings.Join(parts, " ")
		c.env.Logger.Info("GM_log", zap.String("script", c.DisplayName), zap.String("message", msg))
		if c.env.Log != nil {
			c.env.Log(c.DisplayName, msg)
		}
		return goja.Undefined()
	}
}

func openInTab(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		opts := tabs.OpenOptions{URL: call.Argument(0).String(), Active: true}
		arg := call.Argument(1)
		if background, ok := arg.Export().(bool); ok {
			opts.Active = !background
		} else if !nullish(arg) {
			o := arg.ToObject(c.env.VM)
			if v := o.Get("active"); !nullish(v) {
				opts.Active = v.ToBoolean()
			}
			if v := o.Get("insert"); !nullish(v) {
				opts.Insert = v.ToBoolean()
			}
		}
		c.post(bridge.CmdTabOpen, opts)
		return goja.Undefined()
	}
}

func closeTab(c *Context) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		c.post(bridge.CmdTabClose, nil)
		return goja.Undefined()
	}
}

func focusTab(c *Context) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		c.post(bridge.CmdTabFocus, nil)
		return goja.Undefined()
	}
}

func (c *Context) post(cmd string, data interface{}) {
	if err := c.env.Bridge.Post(cmd, data); err != nil {
		c.env.Logger.Warn("post failed", zap.String("cmd", cmd), zap.Error(err))
	}
}
