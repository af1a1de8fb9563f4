package tabs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"go.uber.org/zap"
)

type subscription struct {
	id      int
	props   []string
	created CreatedFunc
	updated UpdatedFunc
}

// Manager is an in-memory tab and window model. It backs tests and the
// headless server mode.
type Manager struct {
	mu      sync.Mutex
	tabs    map[int64]*types.Tab
	windows map[int64]bool
	focused int64
	nextTab int64
	nextWin int64
	nextSub int
	subs    []subscription
	logger  *zap.Logger
}

// NewManager creates a manager holding one empty, focused window.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		tabs:    make(map[int64]*types.Tab),
		windows: make(map[int64]bool),
		nextTab: 1,
		nextWin: 1,
		logger:  logger.Named("tabs"),
	}
	m.focused = m.newWindowLocked()
	return m
}

func (m *Manager) newWindowLocked() int64 {
	id := m.nextWin
	m.nextWin++
	m.windows[id] = true
	return id
}

// NewWindow adds a window and returns its id.
func (m *Manager) NewWindow() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newWindowLocked()
}

// FocusedWindow returns the id of the focused window.
func (m *Manager) FocusedWindow() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focused
}

func (m *Manager) Get(_ context.Context, id int64) (*types.Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	return t.Clone(), nil
}

// List returns all tabs ordered by id.
func (m *Manager) List() []*types.Tab {
	m.mu.Lock()
	out := make([]*types.Tab, 0, len(m.tabs))
	for _, t := range m.tabs {
		out = append(out, t.Clone())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*types.Tab, error) {
	m.mu.Lock()
	win := opts.WindowID
	if win == 0 {
		win = m.focused
	}
	if !m.windows[win] {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrNoWindow, win)
	}
	url := opts.URL
	if url == "" {
		url = "about:blank"
	}
	t := &types.Tab{
		ID:        m.nextTab,
		WindowID:  win,
		URL:       url,
		Status:    types.TabLoading,
		Incognito: opts.Incognito,
	}
	m.nextTab++
	m.tabs[t.ID] = t
	if opts.Active {
		m.activateLocked(t)
	}
	snap := t.Clone()
	subs := m.subscribersLocked()
	m.mu.Unlock()

	m.logger.Debug("tab created", zap.Int64("tab", snap.ID), zap.String("url", snap.URL))
	for _, s := range subs {
		if s.created != nil {
			s.created(ctx, snap.Clone())
		}
	}
	return snap, nil
}

func (m *Manager) Update(ctx context.Context, id int64, opts UpdateOptions) (*types.Tab, error) {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	var change types.TabChange
	if opts.URL != "" && opts.URL != t.URL {
		t.URL = opts.URL
		t.Status = types.TabLoading
		change.URL = opts.URL
		change.Status = types.TabLoading
	}
	if opts.Active != nil && *opts.Active {
		m.activateLocked(t)
	}
	snap := t.Clone()
	subs := m.subscribersLocked()
	m.mu.Unlock()

	m.emitUpdated(ctx, subs, id, change, snap)
	return snap, nil
}

// SetTitle records a page title, as a finished load reports it.
func (m *Manager) SetTitle(ctx context.Context, id int64, title string) error {
	return m.apply(ctx, id, func(t *types.Tab, c *types.TabChange) {
		t.Title = title
		c.Title = title
	})
}

// Complete marks a tab as finished loading.
func (m *Manager) Complete(ctx context.Context, id int64) error {
	return m.apply(ctx, id, func(t *types.Tab, c *types.TabChange) {
		t.Status = types.TabComplete
		c.Status = types.TabComplete
	})
}

func (m *Manager) apply(ctx context.Context, id int64, fn func(*types.Tab, *types.TabChange)) error {
	m.mu.Lock()
	t, ok := m.tabs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	var change types.TabChange
	fn(t, &change)
	snap := t.Clone()
	subs := m.subscribersLocked()
	m.mu.Unlock()

	m.emitUpdated(ctx, subs, id, change, snap)
	return nil
}

func (m *Manager) Remove(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	delete(m.tabs, id)
	return nil
}

func (m *Manager) FocusWindow(_ context.Context, windowID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.windows[windowID] {
		return fmt.Errorf("%w: %d", ErrNoWindow, windowID)
	}
	m.focused = windowID
	return nil
}

func (m *Manager) OnCreated(fn CreatedFunc) func() {
	return m.subscribe(subscription{created: fn})
}

func (m *Manager) OnUpdated(props []string, fn UpdatedFunc) func() {
	return m.subscribe(subscription{props: props, updated: fn})
}

func (m *Manager) subscribe(s subscription) func() {
	m.mu.Lock()
	m.nextSub++
	s.id = m.nextSub
	m.subs = append(m.subs, s)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, cur := range m.subs {
			if cur.id == s.id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) subscribersLocked() []subscription {
	return append([]subscription(nil), m.subs...)
}

func (m *Manager) emitUpdated(ctx context.Context, subs []subscription, id int64, change types.TabChange, snap *types.Tab) {
	if change == (types.TabChange{}) {
		return
	}
	for _, s := range subs {
		if s.updated != nil && MatchesFilter(s.props, change) {
			s.updated(ctx, id, change, snap.Clone())
		}
	}
}

func (m *Manager) activateLocked(t *types.Tab) {
	for _, other := range m.tabs {
		if other.WindowID == t.WindowID {
			other.Active = false
		}
	}
	t.Active = true
}

var _ Surface = (*Manager)(nil)
