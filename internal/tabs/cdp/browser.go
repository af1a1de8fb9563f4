package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/rpcc"
	"go.uber.org/zap"
)

// browserWindow is the only window the DevTools HTTP endpoint exposes.
const browserWindow = 1

type subscription struct {
	id      int
	props   []string
	created tabs.CreatedFunc
	updated tabs.UpdatedFunc
}

// Browser drives page targets of a Chromium instance through its DevTools
// endpoint. Target ids are mapped to stable numeric tab ids.
type Browser struct {
	dt     *devtool.DevTools
	logger *zap.Logger

	mu      sync.Mutex
	ids     map[string]int64
	targets map[int64]*devtool.Target
	known   map[int64]types.Tab
	nextID  int64
	nextSub int
	subs    []subscription
}

// NewBrowser connects to the DevTools HTTP endpoint at url
// (e.g. http://127.0.0.1:9222).
func NewBrowser(url string, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{
		dt:      devtool.New(url),
		logger:  logger.Named("cdp"),
		ids:     make(map[string]int64),
		targets: make(map[int64]*devtool.Target),
		known:   make(map[int64]types.Tab),
		nextID:  1,
	}
}

func (b *Browser) idForLocked(t *devtool.Target) int64 {
	if id, ok := b.ids[t.ID]; ok {
		b.targets[id] = t
		return id
	}
	id := b.nextID
	b.nextID++
	b.ids[t.ID] = id
	b.targets[id] = t
	return id
}

func toTab(id int64, t *devtool.Target) *types.Tab {
	return &types.Tab{
		ID:       id,
		WindowID: browserWindow,
		URL:      t.URL,
		Title:    t.Title,
		Status:   types.TabComplete,
	}
}

func (b *Browser) pages(ctx context.Context) ([]*devtool.Target, error) {
	all, err := b.dt.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	out := all[:0]
	for _, t := range all {
		if t.Type == devtool.Page {
			out = append(out, t)
		}
	}
	return out, nil
}

// Target returns the DevTools target behind a tab id.
func (b *Browser) Target(ctx context.Context, id int64) (*devtool.Target, error) {
	if _, err := b.Get(ctx, id); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.targets[id], nil
}

func (b *Browser) Get(ctx context.Context, id int64) (*types.Tab, error) {
	list, err := b.pages(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range list {
		if b.idForLocked(t) == id {
			return toTab(id, t), nil
		}
	}
	return nil, fmt.Errorf("%w: %d", tabs.ErrNoTab, id)
}

// List returns all page targets as tabs.
func (b *Browser) List(ctx context.Context) ([]*types.Tab, error) {
	list, err := b.pages(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Tab, 0, len(list))
	for _, t := range list {
		out = append(out, toTab(b.idForLocked(t), t))
	}
	return out, nil
}

func (b *Browser) Create(ctx context.Context, opts tabs.CreateOptions) (*types.Tab, error) {
	url := opts.URL
	if url == "" {
		url = "about:blank"
	}
	t, err := b.dt.CreateURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create target: %w", err)
	}
	if opts.Active {
		if err := b.dt.Activate(ctx, t); err != nil {
			b.logger.Warn("activate failed", zap.String("target", t.ID), zap.Error(err))
		}
	}
	b.mu.Lock()
	id := b.idForLocked(t)
	b.mu.Unlock()
	tab := toTab(id, t)
	tab.Active = opts.Active
	return tab, nil
}

func (b *Browser) Update(ctx context.Context, id int64, opts tabs.UpdateOptions) (*types.Tab, error) {
	t, err := b.Target(ctx, id)
	if err != nil {
		return nil, err
	}
	if opts.URL != "" {
		if err := b.navigate(ctx, t, opts.URL); err != nil {
			return nil, err
		}
	}
	tab := toTab(id, t)
	if opts.URL != "" {
		tab.URL = opts.URL
		tab.Status = types.TabLoading
	}
	if opts.Active != nil && *opts.Active {
		if err := b.dt.Activate(ctx, t); err != nil {
			return nil, fmt.Errorf("activate %d: %w", id, err)
		}
		tab.Active = true
	}
	return tab, nil
}

// Navigate loads url in the tab.
func (b *Browser) Navigate(ctx context.Context, id int64, url string) error {
	t, err := b.Target(ctx, id)
	if err != nil {
		return err
	}
	return b.navigate(ctx, t, url)
}

func (b *Browser) navigate(ctx context.Context, t *devtool.Target, url string) error {
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.ID, err)
	}
	defer conn.Close()
	c := cdp.NewClient(conn)
	if _, err := c.Page.Navigate(ctx, page.NewNavigateArgs(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", t.ID, err)
	}
	return nil
}

func (b *Browser) Remove(ctx context.Context, id int64) error {
	t, err := b.Target(ctx, id)
	if err != nil {
		return err
	}
	if err := b.dt.Close(ctx, t); err != nil {
		return fmt.Errorf("close %d: %w", id, err)
	}
	b.mu.Lock()
	delete(b.ids, t.ID)
	delete(b.targets, id)
	delete(b.known, id)
	b.mu.Unlock()
	return nil
}

// FocusWindow is a no-op: all targets share the one browser window.
func (b *Browser) FocusWindow(_ context.Context, windowID int64) error {
	if windowID != browserWindow {
		return fmt.Errorf("%w: %d", tabs.ErrNoWindow, windowID)
	}
	return nil
}

func (b *Browser) OnCreated(fn tabs.CreatedFunc) func() {
	return b.subscribe(subscription{created: fn})
}

func (b *Browser) OnUpdated(props []string, fn tabs.UpdatedFunc) func() {
	return b.subscribe(subscription{props: props, updated: fn})
}

func (b *Browser) subscribe(s subscription) func() {
	b.mu.Lock()
	b.nextSub++
	s.id = b.nextSub
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.subs {
			if cur.id == s.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Watch polls the target list every interval and emits created and updated
// events by diffing against the previous poll. It returns when ctx is done.
func (b *Browser) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := b.poll(ctx); err != nil && ctx.Err() == nil {
			b.logger.Debug("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Browser) poll(ctx context.Context) error {
	list, err := b.pages(ctx)
	if err != nil {
		return err
	}

	type event struct {
		tab    *types.Tab
		change *types.TabChange
	}
	var events []event

	b.mu.Lock()
	seen := make(map[int64]bool, len(list))
	for _, t := range list {
		id := b.idForLocked(t)
		seen[id] = true
		cur := *toTab(id, t)
		prev, ok := b.known[id]
		b.known[id] = cur
		if !ok {
			events = append(events, event{tab: cur.Clone()})
			continue
		}
		var change types.TabChange
		if cur.URL != prev.URL {
			change.URL = cur.URL
		}
		if cur.Title != prev.Title {
			change.Title = cur.Title
		}
		if change != (types.TabChange{}) {
			events = append(events, event{tab: cur.Clone(), change: &change})
		}
	}
	for id := range b.known {
		if !seen[id] {
			delete(b.known, id)
		}
	}
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	for _, ev := range events {
		for _, s := range subs {
			switch {
			case ev.change == nil && s.created != nil:
				s.created(ctx, ev.tab.Clone())
			case ev.change != nil && s.updated != nil && tabs.MatchesFilter(s.props, *ev.change):
				s.updated(ctx, ev.tab.ID, *ev.change, ev.tab.Clone())
			}
		}
	}
	return nil
}

var _ tabs.Surface = (*Browser)(nil)
