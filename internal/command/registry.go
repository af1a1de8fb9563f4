package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/bytedance/sonic"
)

var (
	ErrNotFound  = errors.New("command not found")
	ErrNotPublic = errors.New("command not public")
	ErrPayload   = errors.New("bad command payload")
)

// Handler runs one command. payload is the raw JSON argument.
type Handler func(ctx context.Context, payload json.RawMessage, src *types.Source) (interface{}, error)

type entry struct {
	handler Handler
	public  bool
}

// Registry maps command names to handlers.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]entry)}
}

// Register adds an internal command, replacing any previous one with the
// same name.
func (r *Registry) Register(name string, h Handler) error {
	return r.register(name, h, false)
}

// RegisterPublic adds a command that external callers (the HTTP API) may
// invoke.
func (r *Registry) RegisterPublic(name string, h Handler) error {
	return r.register(name, h, true)
}

func (r *Registry) register(name string, h Handler, public bool) error {
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("command %s: nil handler", name)
	}
	r.mu.Lock()
	r.commands[name] = entry{handler: h, public: public}
	r.mu.Unlock()
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// List returns registered command names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Invoke runs the named command with a raw payload.
func (r *Registry) Invoke(ctx context.Context, name string, payload json.RawMessage, src *types.Source) (interface{}, error) {
	r.mu.RLock()
	e, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e.handler(ctx, payload, src)
}

// InvokePublic is Invoke restricted to public commands.
func (r *Registry) InvokePublic(ctx context.Context, name string, payload json.RawMessage, src *types.Source) (interface{}, error) {
	r.mu.RLock()
	e, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !e.public {
		return nil, fmt.Errorf("%w: %s", ErrNotPublic, name)
	}
	return e.handler(ctx, payload, src)
}

// Call encodes payload and invokes name.
func (r *Registry) Call(ctx context.Context, name string, payload interface{}, src *types.Source) (interface{}, error) {
	raw, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}
	return r.Invoke(ctx, name, raw, src)
}

// Typed adapts a handler taking a decoded payload of type P.
func Typed[P any](fn func(ctx context.Context, payload P, src *types.Source) (interface{}, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage, src *types.Source) (interface{}, error) {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := sonic.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPayload, err)
			}
		}
		return fn(ctx, p, src)
	}
}
