package sandbox

import (
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/gmapi"
	"github.com/dop251/goja"
)

// scope is the object a granted script runs "with". Reads see the script's
// own writes, then its API, then the page global. Writes never reach the
// API or the page global. window, self and globalThis name the scope
// itself unless the script assigned them.
type scope struct {
	wrapper *gmapi.Wrapper
	global  *goja.Object
	self    *goja.Object
	overlay map[string]goja.Value
}

func isGlobalName(key string) bool {
	return key == "window" || key == "self" || key == "globalThis"
}

func newScope(w *gmapi.Wrapper, global *goja.Object) *scope {
	return &scope{wrapper: w, global: global, overlay: make(map[string]goja.Value)}
}

func (s *scope) Get(key string) goja.Value {
	if v, ok := s.overlay[key]; ok {
		return v
	}
	if s.self != nil && isGlobalName(key) {
		return s.self
	}
	if v, ok := s.wrapper.Resolve(key); ok {
		return v
	}
	return s.global.Get(key)
}

func (s *scope) Set(key string, val goja.Value) bool {
	s.overlay[key] = val
	return true
}

func (s *scope) Has(key string) bool {
	if _, ok := s.overlay[key]; ok {
		return true
	}
	if s.self != nil && isGlobalName(key) {
		return true
	}
	if _, ok := s.wrapper.Resolve(key); ok {
		return true
	}
	return s.global.Get(key) != nil
}

func (s *scope) Delete(key string) bool {
	delete(s.overlay, key)
	return true
}

func (s *scope) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(list []string) {
		for _, k := range list {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	for k := range s.overlay {
		add([]string{k})
	}
	add(s.wrapper.Names())
	add(s.global.Keys())
	return keys
}
