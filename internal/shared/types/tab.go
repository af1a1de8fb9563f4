package types

// Tab load states.
const (
	TabLoading  = "loading"
	TabComplete = "complete"
)

// Tab is a browser tab as reported by the tab control surface.
type Tab struct {
	ID        int64  `json:"id"`
	WindowID  int64  `json:"windowId"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Status    string `json:"status,omitempty"`
	Active    bool   `json:"active"`
	Incognito bool   `json:"incognito"`
}

// Clone returns a copy safe to hand to another goroutine.
func (t *Tab) Clone() *Tab {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// TabChange lists the properties changed by one tab update. Empty fields
// did not change.
type TabChange struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Has reports whether the named property ("url", "status", "title") changed.
func (c TabChange) Has(prop string) bool {
	switch prop {
	case "url":
		return c.URL != ""
	case "status":
		return c.Status != ""
	case "title":
		return c.Title != ""
	}
	return false
}

// Source identifies the caller of a command: the document URL that sent it
// and, when it came from a page, that page's tab.
type Source struct {
	URL string `json:"url,omitempty"`
	Tab *Tab   `json:"tab,omitempty"`
}

// TabID returns the source tab id, or -1 when there is no tab.
func (s *Source) TabID() int64 {
	if s == nil || s.Tab == nil {
		return -1
	}
	return s.Tab.ID
}
