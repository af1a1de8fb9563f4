package install

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"go.uber.org/zap"
)

// Resource types seen by the network observer.
const (
	TypeMainFrame = "main_frame"
	TypeSubFrame  = "sub_frame"
	TypeOther     = "other"
)

// Request is an outbound request seen by the network observer.
type Request struct {
	Method string
	URL    string
	// TabID is -1 for requests not tied to a tab.
	TabID int64
	Type  string
}

// Action is what the observer does with a request.
type Action int

const (
	Allow Action = iota
	Cancel
	Redirect
)

func (a Action) String() string {
	switch a {
	case Cancel:
		return "cancel"
	case Redirect:
		return "redirect"
	default:
		return "allow"
	}
}

// Decision is the observer's verdict on one request.
type Decision struct {
	Action      Action
	RedirectURL string
}

// OnBeforeRequest decides the fate of a top-level GET. Intercepted
// navigations are cancelled (or sent to a no-op URL) and checked out of
// band by MaybeInstallUserJs.
func (r *Redirector) OnBeforeRequest(_ context.Context, req Request) Decision {
	if req.Type != "" && req.Type != TypeMainFrame {
		return Decision{}
	}
	if !r.matchesFilter(req.URL) {
		return Decision{}
	}
	if req.Method != "" && !strings.EqualFold(req.Method, http.MethodGet) {
		return Decision{}
	}
	if strings.HasPrefix(req.URL, r.cfg.ExtensionRoot) {
		r.metrics.InstallDecision("redirected")
		return Decision{Action: Redirect, RedirectURL: r.ResolveVirtualURL(req.URL)}
	}
	if r.cache.Has(bypassPrefix+req.URL) || !ShouldIntercept(req.URL) {
		return Decision{}
	}

	r.metrics.InstallDecision("intercepted")
	r.logger.Debug("intercepted", zap.String("url", req.URL), zap.Int64("tab", req.TabID))
	tabID, url := req.TabID, req.URL
	r.goAsync(func(ctx context.Context) { r.MaybeInstallUserJs(ctx, tabID, url) })

	if r.cfg.CanCancel {
		return Decision{Action: Cancel}
	}
	return Decision{Action: Redirect, RedirectURL: noopURL}
}

// OnTabCreated marks .user.js tabs as replaceable, resolves virtual URLs
// carried in a blank tab's title, and offers local files the browser cannot
// read to the confirmation flow.
func (r *Redirector) OnTabCreated(ctx context.Context, tab *types.Tab) {
	if tab == nil {
		return
	}
	isFile := isFileURL(tab.URL)
	isUserJS := IsUserJS(tab.URL)

	// Firefox 68+ reads file: URLs only from the tab itself, so it must stay open.
	if isUserJS && (!isFile || !r.cfg.Firefox || r.cfg.Version < 68) {
		r.cache.Put(autoclosePrefix+itoa(tab.ID), true, r.cfg.AutocloseTTL)
	}
	if r.virtualRe != nil && tab.URL == "about:blank" {
		r.maybeRedirectVirtual(ctx, tab.ID, tab.Title)
	}
	if isUserJS && isFile && !r.cfg.FileSchemeRequestable && !r.cfg.Firefox && r.options.HelpForLocalFile() {
		t := tab.Clone()
		r.goAsync(func(ctx context.Context) {
			if _, err := r.ConfirmInstall(ctx, ConfirmPayload{URL: t.URL, FS: true}, &types.Source{Tab: t}); err != nil {
				r.logger.Warn("local file confirm failed", zap.String("url", t.URL), zap.Error(err))
			}
		})
	}
}

// OnTabUpdated redirects virtual URLs the network layer could not catch.
// Without a url change, a blank tab's title stands in for it.
func (r *Redirector) OnTabUpdated(ctx context.Context, tabID int64, change types.TabChange, tab *types.Tab) {
	if r.virtualRe == nil {
		return
	}
	src := change.URL
	if src == "" && tab != nil && tab.URL == "about:blank" {
		src = tab.Title
	}
	if src != "" {
		r.maybeRedirectVirtual(ctx, tabID, src)
	}
}

func (r *Redirector) maybeRedirectVirtual(ctx context.Context, tabID int64, src string) {
	if !r.virtualRe.MatchString(src) {
		return
	}
	target := r.ResolveVirtualURL(src)
	if _, err := r.tabs.Update(ctx, tabID, tabs.UpdateOptions{URL: target}); err != nil {
		r.logger.Warn("virtual url redirect failed", zap.Int64("tab", tabID), zap.Error(err))
		return
	}
	r.metrics.InstallDecision("redirected")
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
