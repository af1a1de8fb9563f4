package gmapi

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

type jsonFuncs struct {
	parse     goja.Callable
	stringify goja.Callable
}

// captureJSON binds JSON.parse and JSON.stringify before any script runs.
func captureJSON(vm *goja.Runtime) jsonFuncs {
	var j jsonFuncs
	obj := vm.Get("JSON").ToObject(vm)
	j.parse, _ = goja.AssertFunction(obj.Get("parse"))
	j.stringify, _ = goja.AssertFunction(obj.Get("stringify"))
	return j
}

func (c *Context) load(key string) (goja.Value, bool) {
	raw, ok := c.env.Values.Get(c.ID, key)
	if !ok {
		return nil, false
	}
	v, err := c.env.json.parse(goja.Undefined(), c.env.VM.ToValue(raw))
	if err != nil {
		c.env.Logger.Debug("stored value unreadable", zap.Int64("script", c.ID), zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return v, true
}

func (c *Context) store(key string, v goja.Value) {
	raw, err := c.env.json.stringify(goja.Undefined(), v)
	if err != nil || nullish(raw) {
		c.env.Values.Delete(c.ID, key)
		return
	}
	c.env.Values.Set(c.ID, key, raw.String())
}

func getValue(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if v, ok := c.load(call.Argument(0).String()); ok {
			return c.result(v)
		}
		return c.result(call.Argument(1))
	}
}

func setValue(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		c.store(call.Argument(0).String(), call.Argument(1))
		return c.result(goja.Undefined())
	}
}

func deleteValue(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		c.env.Values.Delete(c.ID, call.Argument(0).String())
		return c.result(goja.Undefined())
	}
}

func listValues(c *Context) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		keys := c.env.Values.Keys(c.ID)
		items := make([]interface{}, len(keys))
		for i, k := range keys {
			items[i] = k
		}
		return c.result(c.env.VM.NewArray(items...))
	}
}

// getValues takes a list of keys, or an object of keys to defaults.
func getValues(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		vm := c.env.VM
		out := vm.NewObject()
		arg := call.Argument(0)
		if nullish(arg) {
			return c.result(out)
		}
		o := arg.ToObject(vm)
		if o.ClassName() == "Array" {
			for _, k := range arrayStrings(vm, o) {
				if v, ok := c.load(k); ok {
					_ = out.Set(k, v)
				}
			}
			return c.result(out)
		}
		for _, k := range o.Keys() {
			if v, ok := c.load(k); ok {
				_ = out.Set(k, v)
			} else {
				_ = out.Set(k, o.Get(k))
			}
		}
		return c.result(out)
	}
}

func setValues(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if arg := call.Argument(0); !nullish(arg) {
			o := arg.ToObject(c.env.VM)
			for _, k := range o.Keys() {
				c.store(k, o.Get(k))
			}
		}
		return c.result(goja.Undefined())
	}
}

func deleteValues(c *Context) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if arg := call.Argument(0); !nullish(arg) {
			for _, k := range arrayStrings(c.env.VM, arg.ToObject(c.env.VM)) {
				c.env.Values.Delete(c.ID, k)
			}
		}
		return c.result(goja.Undefined())
	}
}

func arrayStrings(vm *goja.Runtime, arr *goja.Object) []string {
	n := int(arr.Get("length").ToInteger())
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr.Get(vm.ToValue(i).String()).String())
	}
	return out
}
