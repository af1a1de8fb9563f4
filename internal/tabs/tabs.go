package tabs

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/shared/types"
)

var (
	ErrNoTab    = errors.New("no such tab")
	ErrNoWindow = errors.New("no such window")
)

// UpdateOptions changes an existing tab. Zero fields are left alone.
type UpdateOptions struct {
	URL    string
	Active *bool
}

// CreateOptions opens a new tab.
type CreateOptions struct {
	URL string
	// WindowID 0 means the focused window.
	WindowID    int64
	Active      bool
	OpenerTabID int64
	Incognito   bool
}

// Controller is the tab control surface.
type Controller interface {
	Get(ctx context.Context, id int64) (*types.Tab, error)
	Update(ctx context.Context, id int64, opts UpdateOptions) (*types.Tab, error)
	Create(ctx context.Context, opts CreateOptions) (*types.Tab, error)
	Remove(ctx context.Context, id int64) error
	FocusWindow(ctx context.Context, windowID int64) error
}

// CreatedFunc observes new tabs.
type CreatedFunc func(ctx context.Context, tab *types.Tab)

// UpdatedFunc observes tab updates.
type UpdatedFunc func(ctx context.Context, tabID int64, change types.TabChange, tab *types.Tab)

// Events delivers tab lifecycle notifications. OnUpdated only fires for
// updates touching at least one of props ("url", "status", "title"); an
// empty props list matches every update. Both return an unsubscribe func.
type Events interface {
	OnCreated(fn CreatedFunc) func()
	OnUpdated(props []string, fn UpdatedFunc) func()
}

// Surface is a Controller that also emits Events.
type Surface interface {
	Controller
	Events
}

// MatchesFilter reports whether change touches one of props.
func MatchesFilter(props []string, change types.TabChange) bool {
	if len(props) == 0 {
		return true
	}
	for _, p := range props {
		if change.Has(p) {
			return true
		}
	}
	return false
}
