package gmapi

import (
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/script"
	"github.com/dop251/goja"
)

// Context is the per-script state every bound capability receives.
type Context struct {
	ID          int64
	DisplayName string
	// Resources maps @resource names to URLs. The async twin shares it.
	Resources map[string]string
	// ResCache holds resolved resource values; each context owns its own.
	ResCache map[string]goja.Value
	// Async capabilities return promises.
	Async bool

	env *Env
}

// contexts owns the primary context and its lazily built async twin.
type contexts struct {
	primary *Context
	twin    *Context
}

func newContexts(s *script.Script, env *Env) *contexts {
	return &contexts{primary: &Context{
		ID:          s.ID,
		DisplayName: s.DisplayName,
		Resources:   s.Meta.ResourceMap(),
		ResCache:    make(map[string]goja.Value),
		env:         env,
	}}
}

// async returns the async twin, creating it on first use.
func (cs *contexts) async() *Context {
	if cs.twin == nil {
		p := cs.primary
		cs.twin = &Context{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Resources:   p.Resources,
			ResCache:    make(map[string]goja.Value),
			Async:       true,
			env:         p.env,
		}
	}
	return cs.twin
}

func (cs *contexts) forGrant(g Grant) *Context {
	if g.Async {
		return cs.async()
	}
	return cs.primary
}

// result returns v directly, or as a resolved promise in an async context.
func (c *Context) result(v goja.Value) goja.Value {
	if !c.Async {
		return v
	}
	p, resolve, _ := c.env.VM.NewPromise()
	resolve(v)
	return c.env.VM.ToValue(p)
}
