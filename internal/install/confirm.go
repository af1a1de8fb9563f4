package install

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/script"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/tabs"
	"go.uber.org/zap"
)

const (
	previewLines = 9
	previewChars = 500
)

var lineBreakRe = regexp.MustCompile(`[\r\n]+\s*`)

// InvalidScriptError rejects a confirmation whose content is not a user
// script. Preview holds the first lines of the offending content.
type InvalidScriptError struct {
	Message string
	Preview string
}

func (e *InvalidScriptError) Error() string {
	return e.Message + "\n\n" + e.Preview + "..."
}

// IsInvalidScript reports whether err is an InvalidScriptError.
func IsInvalidScript(err error) bool {
	var e *InvalidScriptError
	return errors.As(err, &e)
}

// Preview returns at most 9 lines of code, capped at 500 characters.
func Preview(code string) string {
	lines := lineBreakRe.Split(strings.TrimSpace(code), -1)
	if len(lines) > previewLines {
		lines = lines[:previewLines]
	}
	joined := []rune(strings.Join(lines, "\n"))
	if len(joined) > previewChars {
		joined = joined[:previewChars]
	}
	return string(joined)
}

// ConfirmPayload is the ConfirmInstall argument.
type ConfirmPayload struct {
	Code string `json:"code,omitempty"`
	From string `json:"from,omitempty"`
	URL  string `json:"url"`
	// FS marks a local file the confirm page reads itself.
	FS bool `json:"fs,omitempty"`
}

// Confirmation is the record the confirm page looks up by token.
type Confirmation struct {
	Incognito bool   `json:"incognito"`
	URL       string `json:"url"`
	From      string `json:"from"`
	TabID     int64  `json:"tabId"`
	FS        bool   `json:"fs"`
	FF        int    `json:"ff"`
}

func newConfirmKey() string { return id.NewConfirmKey().String() }

// ConfirmInstall validates the candidate, stores a confirmation record and
// points a tab at the confirm page: the caller's tab when it can be
// replaced, a new one otherwise. It returns the confirmation token.
func (r *Redirector) ConfirmInstall(ctx context.Context, p ConfirmPayload, src *types.Source) (string, error) {
	tab := types.Tab{ID: -1}
	if src != nil && src.Tab != nil {
		tab = *src.Tab
	}
	log := r.logger.With(zap.String("url", p.URL), zap.Int64("tab", tab.ID))

	if !p.FS {
		code := p.Code
		if code == "" {
			res, err := r.fetcher.Request(ctx, p.URL)
			if err != nil {
				r.metrics.Confirmation("fetch_failed")
				return "", fmt.Errorf("fetch %s: %w", p.URL, err)
			}
			code = res.Data
		}
		if !script.IsUserScript(code) {
			r.metrics.Confirmation("rejected")
			log.Info("rejected invalid script")
			return "", &InvalidScriptError{
				Message: r.messages.Get("msgInvalidScript"),
				Preview: Preview(code),
			}
		}
		r.cache.Put(p.URL, code, r.cfg.CodeTTL)
	}

	key := r.newKey()
	canReplace := tab.ID >= 0 &&
		(!tab.Incognito || r.cfg.AllowPrivateReplace) &&
		(p.URL == p.From || r.cache.Has(autoclosePrefix+itoa(tab.ID)) || IsNewTabURL(p.From))

	ff := 0
	if r.cfg.Firefox {
		ff = r.cfg.Version
	}
	r.cache.Put(confirmPrefix+key, &Confirmation{
		Incognito: tab.Incognito,
		URL:       p.URL,
		From:      p.From,
		TabID:     tab.ID,
		FS:        p.FS,
		FF:        ff,
	}, r.cfg.ConfirmTTL)

	confirmURL := r.cfg.ConfirmURLBase + key
	var windowID int64
	if canReplace {
		updated, err := r.tabs.Update(ctx, tab.ID, tabs.UpdateOptions{URL: confirmURL})
		if err != nil {
			return "", fmt.Errorf("replace tab %d: %w", tab.ID, err)
		}
		windowID = updated.WindowID
	} else {
		res, err := r.commands.Call(ctx, tabs.CmdTabOpen, tabs.OpenOptions{URL: confirmURL, Active: tab.Active}, &types.Source{Tab: &tab})
		if err != nil {
			return "", fmt.Errorf("open confirm tab: %w", err)
		}
		opened, ok := res.(*tabs.OpenResult)
		if !ok || opened == nil {
			return "", fmt.Errorf("open confirm tab: unexpected result %T", res)
		}
		windowID = opened.WindowID
	}
	if tab.Active && windowID != tab.WindowID {
		if err := r.tabs.FocusWindow(ctx, windowID); err != nil {
			log.Warn("focus window failed", zap.Int64("window", windowID), zap.Error(err))
		}
	}

	r.metrics.Confirmation("created")
	log.Info("confirmation created", zap.String("key", key), zap.Bool("replaced", canReplace))
	return key, nil
}

// CheckInstallerTab reports whether tabID already shows the confirm page,
// asked by a local file on a Firefox-like variant.
func (r *Redirector) CheckInstallerTab(ctx context.Context, tabID int64, src *types.Source) bool {
	if !r.cfg.Firefox || src == nil || !isFileURL(src.URL) {
		return false
	}
	tab, err := r.tabs.Get(ctx, tabID)
	if err != nil {
		return false
	}
	return strings.HasPrefix(tab.URL, r.cfg.ConfirmURLBase)
}

// MaybeInstallUserJs fetches url and starts the confirmation flow when it is
// a user script. Anything else is marked bypassed and the tab is sent back
// to url. Fetch failures count as "not a script".
func (r *Redirector) MaybeInstallUserJs(ctx context.Context, tabID int64, url string) {
	tab := &types.Tab{ID: tabID}
	if tabID >= 0 {
		if t, err := r.tabs.Get(ctx, tabID); err == nil {
			tab = t
		} else {
			r.logger.Debug("tab lookup failed", zap.Int64("tab", tabID), zap.Error(err))
		}
	}

	var code string
	if res, err := r.fetcher.Request(ctx, url); err == nil {
		code = res.Data
	} else {
		r.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
	}

	if code != "" && script.ParseMeta(code).Name != "" {
		_, err := r.ConfirmInstall(ctx, ConfirmPayload{Code: code, URL: url, From: tab.URL}, &types.Source{Tab: tab})
		if err != nil {
			r.logger.Warn("confirm install failed", zap.String("url", url), zap.Error(err))
		}
		return
	}

	r.cache.Put(bypassPrefix+url, true, r.cfg.BypassTTL)
	r.metrics.InstallDecision("bypassed")
	if tabID >= 0 {
		if _, err := r.tabs.Update(ctx, tabID, tabs.UpdateOptions{URL: url}); err != nil {
			r.logger.Warn("restore navigation failed", zap.Int64("tab", tabID), zap.Error(err))
		}
	}
}
