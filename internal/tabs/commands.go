package tabs

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/command"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
)

// Command names served by this package.
const (
	CmdTabOpen  = "TabOpen"
	CmdTabClose = "TabClose"
	CmdTabFocus = "TabFocus"
)

// OpenOptions is the TabOpen payload.
type OpenOptions struct {
	URL    string `json:"url"`
	Active bool   `json:"active"`
	// Insert places the tab next to the caller's; ignored by the
	// in-memory model.
	Insert bool `json:"insert,omitempty"`
}

// OpenResult is what TabOpen returns.
type OpenResult struct {
	ID       int64 `json:"id"`
	WindowID int64 `json:"windowId"`
}

// TargetOptions names a tab for TabClose and TabFocus; zero means the
// caller's own tab.
type TargetOptions struct {
	ID int64 `json:"id,omitempty"`
}

// RegisterCommands installs TabOpen, TabClose and TabFocus on reg, all
// backed by ctrl.
func RegisterCommands(reg *command.Registry, ctrl Controller) error {
	if err := reg.Register(CmdTabOpen, command.Typed(func(ctx context.Context, p OpenOptions, src *types.Source) (interface{}, error) {
		return Open(ctx, ctrl, p, src)
	})); err != nil {
		return err
	}
	if err := reg.Register(CmdTabClose, command.Typed(func(ctx context.Context, p TargetOptions, src *types.Source) (interface{}, error) {
		id, err := target(p, src)
		if err != nil {
			return nil, err
		}
		return nil, ctrl.Remove(ctx, id)
	})); err != nil {
		return err
	}
	return reg.Register(CmdTabFocus, command.Typed(func(ctx context.Context, p TargetOptions, src *types.Source) (interface{}, error) {
		id, err := target(p, src)
		if err != nil {
			return nil, err
		}
		active := true
		tab, err := ctrl.Update(ctx, id, UpdateOptions{Active: &active})
		if err != nil {
			return nil, err
		}
		return nil, ctrl.FocusWindow(ctx, tab.WindowID)
	}))
}

// Open creates a tab for the caller. It opens in the caller's window and
// inherits its privacy flag.
func Open(ctx context.Context, ctrl Controller, p OpenOptions, src *types.Source) (*OpenResult, error) {
	if p.URL == "" {
		return nil, errors.New("tab open: empty url")
	}
	opts := CreateOptions{URL: p.URL, Active: p.Active}
	if src != nil && src.Tab != nil {
		opts.WindowID = src.Tab.WindowID
		opts.OpenerTabID = src.Tab.ID
		opts.Incognito = src.Tab.Incognito
	}
	tab, err := ctrl.Create(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &OpenResult{ID: tab.ID, WindowID: tab.WindowID}, nil
}

func target(p TargetOptions, src *types.Source) (int64, error) {
	if p.ID != 0 {
		return p.ID, nil
	}
	if id := src.TabID(); id >= 0 {
		return id, nil
	}
	return 0, ErrNoTab
}
