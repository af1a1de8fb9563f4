package gmapi

import (
	"strings"

	"github.com/dop251/goja"
)

// Kind is the resolution path a grant took.
type Kind int

const (
	Unresolved Kind = iota
	// GM4Alias is a GM.x name found in the alias table.
	GM4Alias
	// Direct is a GM_x capability bound to the script's context.
	Direct
	// AsyncOnly is a capability that is only granted by name or by GM4 alias.
	AsyncOnly
	// ContextFree needs no per-script state.
	ContextFree
	// Pseudo maps a window.x grant onto a host action.
	Pseudo
)

func (k Kind) String() string {
	switch k {
	case GM4Alias:
		return "gm4-alias"
	case Direct:
		return "direct"
	case AsyncOnly:
		return "async-only"
	case ContextFree:
		return "context-free"
	case Pseudo:
		return "pseudo"
	default:
		return "unresolved"
	}
}

// Capability builds the native function for one context.
type Capability func(c *Context) func(goja.FunctionCall) goja.Value

// Grant is a parsed grant name.
type Grant struct {
	Name string
	Kind Kind
	// Key is the property name inside the namespace the grant lives in.
	Key string
	// GM4 places the function on the nested GM object instead of the flat
	// namespace.
	GM4 bool
	// Async binds the function to the async twin of the context.
	Async bool

	cap Capability
}

const (
	gm4Prefix    = "GM."
	gmPrefix     = "GM_"
	windowPrefix = "window."
)

var contextAPI = map[string]Capability{
	"GM_xmlhttpRequest":  xmlHTTPRequest,
	"GM_getResourceText": getResourceText,
	"GM_getResourceURL":  getResourceURL,
	"GM_getValue":        getValue,
	"GM_setValue":        setValue,
	"GM_deleteValue":     deleteValue,
	"GM_listValues":      listValues,
}

var asyncOnlyAPI = map[string]Capability{
	"GM_getValues":    getValues,
	"GM_setValues":    setValues,
	"GM_deleteValues": deleteValues,
}

var gm4Aliases = map[string]Capability{
	"xmlHttpRequest": xmlHTTPRequest,
	"getResourceUrl": getResourceURL,
	"getValue":       getValue,
	"setValue":       setValue,
	"deleteValue":    deleteValue,
	"listValues":     listValues,
}

var freeAPI = map[string]Capability{
	"GM_log":       gmLog,
	"GM_openInTab": openInTab,
}

var pseudoAPI = map[string]Capability{
	"window.close": closeTab,
	"window.focus": focusTab,
}

// ParseGrant resolves one grant name. The first matching path wins: GM4
// alias, context table, async-only table, context-free table, pseudo
// capability. Anything else is Unresolved.
func ParseGrant(name string) Grant {
	g := Grant{Name: name}
	gmName := name
	gm4Name := ""
	if strings.HasPrefix(name, gm4Prefix) {
		gm4Name = name[len(gm4Prefix):]
	}
	if gm4Name != "" {
		if fn, ok := gm4Aliases[gm4Name]; ok {
			return Grant{Name: name, Kind: GM4Alias, Key: gm4Name, GM4: true, Async: true, cap: fn}
		}
		gmName = gmPrefix + gm4Name
	}

	key, gm4 := name, false
	if gm4Name != "" {
		key, gm4 = gm4Name, true
	}
	if fn, ok := contextAPI[gmName]; ok {
		return Grant{Name: name, Kind: Direct, Key: key, GM4: gm4, cap: fn}
	}
	if fn, ok := asyncOnlyAPI[gmName]; ok {
		return Grant{Name: name, Kind: AsyncOnly, Key: key, GM4: gm4, Async: gm4, cap: fn}
	}
	if fn, ok := freeAPI[gmName]; ok {
		return Grant{Name: name, Kind: ContextFree, Key: key, GM4: gm4, cap: fn}
	}
	if fn, ok := pseudoAPI[name]; ok {
		return Grant{Name: name, Kind: Pseudo, Key: name[len(windowPrefix):], cap: fn}
	}
	return g
}
