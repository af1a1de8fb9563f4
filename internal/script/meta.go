package script

import (
	"regexp"
	"strings"
)

var (
	metaBlockRe = regexp.MustCompile(`(?s)((?:^|\n)\s*//\x20==UserScript==)(.*?\n)\s*//\x20==/UserScript==`)
	metaLineRe  = regexp.MustCompile(`^\s*//\s*@([\w:.-]+)(?:[ \t]+(.*?))?\s*$`)
)

// GrantNone is the sentinel grant meaning "no privileged API".
const GrantNone = "none"

// Resource is one @resource entry.
type Resource struct {
	Name string
	URL  string
}

// Meta is the parsed metadata block of a user script.
type Meta struct {
	Name        string
	Namespace   string
	Version     string
	Description string
	RunAt       string
	Grant       []string
	Match       []string
	Include     []string
	Exclude     []string
	Require     []string
	// Resources keeps declaration order; names are unique, first wins.
	Resources []Resource
	// Extra holds keys without a dedicated field, including localized
	// variants such as "name:de".
	Extra map[string][]string
}

// ResourceMap returns resources keyed by name.
func (m Meta) ResourceMap() map[string]string {
	out := make(map[string]string, len(m.Resources))
	for _, r := range m.Resources {
		out[r.Name] = r.URL
	}
	return out
}

// ParseMeta extracts the // ==UserScript== block from code. Code without a
// block yields a zero Meta, whose empty Name marks it as not a script.
func ParseMeta(code string) Meta {
	var m Meta
	match := metaBlockRe.FindStringSubmatch(code)
	if match == nil {
		return m
	}
	seenRes := make(map[string]bool)
	for _, line := range strings.Split(match[2], "\n") {
		lm := metaLineRe.FindStringSubmatch(line)
		if lm == nil {
			continue
		}
		key, val := lm[1], strings.TrimSpace(lm[2])
		switch key {
		case "name":
			m.Name = val
		case "namespace":
			m.Namespace = val
		case "version":
			m.Version = val
		case "description":
			m.Description = val
		case "run-at":
			m.RunAt = val
		case "grant":
			m.Grant = appendNonEmpty(m.Grant, val)
		case "match":
			m.Match = appendNonEmpty(m.Match, val)
		case "include":
			m.Include = appendNonEmpty(m.Include, val)
		case "exclude":
			m.Exclude = appendNonEmpty(m.Exclude, val)
		case "require":
			m.Require = appendNonEmpty(m.Require, val)
		case "resource":
			name, url, ok := strings.Cut(val, " ")
			name, url = strings.TrimSpace(name), strings.TrimSpace(url)
			if !ok || name == "" || url == "" || seenRes[name] {
				continue
			}
			seenRes[name] = true
			m.Resources = append(m.Resources, Resource{Name: name, URL: url})
		default:
			if m.Extra == nil {
				m.Extra = make(map[string][]string)
			}
			m.Extra[key] = append(m.Extra[key], val)
		}
	}
	return m
}

// IsUserScript reports whether code carries a metadata block with a name.
func IsUserScript(code string) bool {
	return ParseMeta(code).Name != ""
}

func appendNonEmpty(s []string, v string) []string {
	if v == "" {
		return s
	}
	return append(s, v)
}
