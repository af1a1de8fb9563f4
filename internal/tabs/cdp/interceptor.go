package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/install"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/rpcc"
	"go.uber.org/zap"
)

// Only document requests for .user.js URLs are paused.
const userJSURLPattern = "*.user.js*"

const handleTimeout = 3 * time.Second

// Decider rules on a paused navigation.
type Decider interface {
	OnBeforeRequest(ctx context.Context, req install.Request) install.Decision
}

// Interceptor pauses .user.js navigations in attached tabs and applies the
// Decider's verdict.
type Interceptor struct {
	browser *Browser
	decider Decider
	logger  *zap.Logger

	mu       sync.Mutex
	attached map[int64]bool
}

// NewInterceptor creates an interceptor over b's targets.
func NewInterceptor(b *Browser, d Decider, logger *zap.Logger) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{
		browser:  b,
		decider:  d,
		logger:   logger.Named("intercept"),
		attached: make(map[int64]bool),
	}
}

// Run attaches to every open page and to pages created later, until ctx is
// done. New pages are only seen while the Browser is being watched.
func (i *Interceptor) Run(ctx context.Context) error {
	list, err := i.browser.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range list {
		i.spawn(ctx, t.ID)
	}
	unsub := i.browser.OnCreated(func(_ context.Context, tab *types.Tab) {
		i.spawn(ctx, tab.ID)
	})
	defer unsub()
	<-ctx.Done()
	return nil
}

func (i *Interceptor) spawn(ctx context.Context, tabID int64) {
	i.mu.Lock()
	if i.attached[tabID] {
		i.mu.Unlock()
		return
	}
	i.attached[tabID] = true
	i.mu.Unlock()

	go func() {
		defer func() {
			i.mu.Lock()
			delete(i.attached, tabID)
			i.mu.Unlock()
		}()
		if err := i.Attach(ctx, tabID); err != nil && ctx.Err() == nil {
			i.logger.Debug("detached", zap.Int64("tab", tabID), zap.Error(err))
		}
	}()
}

// Attach enables interception in one tab and handles paused requests until
// ctx is done or the target goes away.
func (i *Interceptor) Attach(ctx context.Context, tabID int64) error {
	t, err := i.browser.Target(ctx, tabID)
	if err != nil {
		return err
	}
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.ID, err)
	}
	defer conn.Close()
	c := cdp.NewClient(conn)

	paused, err := c.Fetch.RequestPaused(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer paused.Close()

	if err := c.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: documentPatterns()}); err != nil {
		return fmt.Errorf("enable fetch: %w", err)
	}
	i.logger.Debug("attached", zap.Int64("tab", tabID), zap.String("target", t.ID))

	for {
		ev, err := paused.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		i.handle(ctx, c, tabID, t.ID, ev)
	}
}

// documentPatterns pauses top-level loads of .user.js URLs.
func documentPatterns() []fetch.RequestPattern {
	p, doc := userJSURLPattern, network.ResourceTypeDocument
	return []fetch.RequestPattern{{
		URLPattern:   &p,
		ResourceType: &doc,
		RequestStage: fetch.RequestStageRequest,
	}}
}

func (i *Interceptor) handle(ctx context.Context, c *cdp.Client, tabID int64, targetID string, ev *fetch.RequestPausedReply) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	req := requestFor(tabID, targetID, ev)
	d := i.decider.OnBeforeRequest(ctx, req)
	fail, navigate := plan(d)

	var err error
	if fail {
		err = c.Fetch.FailRequest(ctx, &fetch.FailRequestArgs{RequestID: ev.RequestID, ErrorReason: network.ErrorReasonAborted})
	} else {
		err = c.Fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID})
	}
	if err != nil {
		i.logger.Warn("resume request failed", zap.String("url", req.URL), zap.Error(err))
		return
	}
	if navigate != "" {
		if _, err := c.Page.Navigate(ctx, page.NewNavigateArgs(navigate)); err != nil {
			i.logger.Warn("redirect failed", zap.String("url", navigate), zap.Error(err))
		}
	}
	i.logger.Debug("request decided", zap.String("url", req.URL), zap.Stringer("action", d.Action))
}

// requestFor describes a paused request. The main frame of a page target
// shares the target's id.
func requestFor(tabID int64, targetID string, ev *fetch.RequestPausedReply) install.Request {
	typ := install.TypeOther
	if ev.ResourceType == network.ResourceTypeDocument {
		typ = install.TypeSubFrame
		if string(ev.FrameID) == targetID {
			typ = install.TypeMainFrame
		}
	}
	url := ev.Request.URL
	if ev.Request.URLFragment != nil {
		url += *ev.Request.URLFragment
	}
	return install.Request{
		Method: ev.Request.Method,
		URL:    url,
		TabID:  tabID,
		Type:   typ,
	}
}

// plan maps a decision onto the paused request: fail it or let it continue,
// then optionally navigate elsewhere. javascript: targets are dropped, a
// failed navigation already leaves the page untouched.
func plan(d install.Decision) (fail bool, navigate string) {
	switch d.Action {
	case install.Cancel:
		return true, ""
	case install.Redirect:
		if d.RedirectURL == "" || strings.HasPrefix(d.RedirectURL, "javascript:") {
			return true, ""
		}
		return true, d.RedirectURL
	default:
		return false, ""
	}
}
