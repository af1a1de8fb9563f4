package gmapi

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/fetch"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/script"
)

// ValueStore persists GM values per script. Values are JSON text.
type ValueStore interface {
	Get(scriptID int64, key string) (string, bool)
	Set(scriptID int64, key, raw string)
	Delete(scriptID int64, key string)
	Keys(scriptID int64) []string
}

// MemoryValues is an in-memory ValueStore.
type MemoryValues struct {
	mu   sync.RWMutex
	data map[int64]map[string]string
}

// NewMemoryValues creates an empty store.
func NewMemoryValues() *MemoryValues {
	return &MemoryValues{data: make(map[int64]map[string]string)}
}

func (m *MemoryValues) Get(id int64, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[id][key]
	return v, ok
}

func (m *MemoryValues) Set(id int64, key, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[id] == nil {
		m.data[id] = make(map[string]string)
	}
	m.data[id][key] = raw
}

func (m *MemoryValues) Delete(id int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[id], key)
}

// Keys returns the script's keys in sorted order.
func (m *MemoryValues) Keys(id int64) []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data[id]))
	for k := range m.data[id] {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Resource is fetched @resource content.
type Resource struct {
	Data        []byte
	ContentType string
}

// ResourceSource serves @resource content by URL. Lookups never block.
type ResourceSource interface {
	Resource(url string) (Resource, bool)
}

// ResourceMap is a preloaded ResourceSource.
type ResourceMap map[string]Resource

func (m ResourceMap) Resource(url string) (Resource, bool) {
	r, ok := m[url]
	return r, ok
}

// Preload fetches every resource of meta. Failed fetches are left out and
// reported together.
func Preload(ctx context.Context, f fetch.Fetcher, meta script.Meta) (ResourceMap, error) {
	out := make(ResourceMap, len(meta.Resources))
	var failed []string
	for _, r := range meta.Resources {
		if _, ok := out[r.URL]; ok {
			continue
		}
		res, err := f.Request(ctx, r.URL)
		if err != nil {
			failed = append(failed, r.Name)
			continue
		}
		out[r.URL] = Resource{Data: []byte(res.Data), ContentType: res.ContentType}
	}
	if len(failed) > 0 {
		return out, fmt.Errorf("resources not loaded: %v", failed)
	}
	return out, nil
}
