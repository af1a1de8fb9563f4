package install

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Raw script endpoints of the big hosting sites.
var whitelistRe = regexp.MustCompile(`(?i)^https://(` +
	`(greas|sleaz)yfork\.org/scripts/[^/]*/code|` +
	`openuserjs\.org/install/[^/]*|` +
	`github\.com/[^/]*/[^/]*/(raw/[^/]*|releases/download/[^/]*)|` +
	`raw\.githubusercontent\.com(/[^/]*){3}|` +
	`gist\.github\.com/.*?` +
	`)/[^/]*?\.user\.js([?#]|$)`)

// Hosting sites whose own pages are not intercepted.
var blacklistRe = regexp.MustCompile(`(?i)^https?://(` +
	`(gist\.)?github\.com|` +
	`((greas|sleaz)yfork|openuserjs)\.org` +
	`)/`)

// Placeholder pages of a fresh tab.
var newTabURLRe = regexp.MustCompile(`^(about:(home|newtab)|(chrome|edge)://(newtab|startpage)/|chrome-search://local-ntp/local-ntp\.html)$`)

var userJSRe = regexp.MustCompile(`\.user\.js([?#]|$)`)

// Network filter: the path of an http(s) or file: URL, or of a URL under the
// extension root, ends in .user.js.
const userJSPattern = "**/*.user.js"

// Blacklisted reports whether u is on a script hosting site.
func Blacklisted(u string) bool { return blacklistRe.MatchString(u) }

// Whitelisted reports whether u is a raw script URL of a hosting site.
func Whitelisted(u string) bool { return whitelistRe.MatchString(u) }

// ShouldIntercept applies the blacklist-then-whitelist policy.
func ShouldIntercept(u string) bool {
	return !Blacklisted(u) || Whitelisted(u)
}

// IsNewTabURL reports whether u is a browser's empty new tab page.
func IsNewTabURL(u string) bool { return newTabURLRe.MatchString(u) }

// IsUserJS reports whether u names a .user.js resource.
func IsUserJS(u string) bool { return userJSRe.MatchString(u) }

func (r *Redirector) matchesFilter(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "file":
	default:
		if !strings.HasPrefix(raw, r.cfg.ExtensionRoot) {
			return false
		}
	}
	ok, err := doublestar.Match(userJSPattern, strings.TrimPrefix(u.Path, "/"))
	return err == nil && ok
}

// virtualURLRe matches <root><name>.user.js#<id>, optionally behind
// view-source: and with the root's scheme omitted, as a tab title shows it.
func virtualURLRe(root string) *regexp.Regexp {
	scheme, rest, ok := strings.Cut(root, "://")
	prefix := regexp.QuoteMeta(root)
	if ok {
		prefix = "(" + regexp.QuoteMeta(scheme+"://") + ")?" + regexp.QuoteMeta(rest)
	}
	return regexp.MustCompile(`^(view-source:)?` + prefix + `[^/]*\.user\.js#\d+`)
}

// ResolveVirtualURL maps a virtual script URL to the options page route of
// that script. A fragment that is not a number yields the script list.
func (r *Redirector) ResolveVirtualURL(raw string) string {
	route := r.cfg.OptionsURL + "#" + routeScripts
	_, frag, _ := strings.Cut(raw, "#")
	if i := strings.IndexAny(frag, "#?"); i >= 0 {
		frag = frag[:i]
	}
	n, err := strconv.ParseInt(frag, 10, 64)
	if err != nil {
		return route
	}
	return route + "/" + strconv.FormatInt(n, 10)
}

const routeScripts = "scripts"
