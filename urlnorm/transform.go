package urlnorm

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// Canonical returns a copy with the query and params segments sorted
// lexicographically by their whole text. It only reorders; duplicates
// stay and escaping is untouched.
func (u URL) Canonical() URL {
	u.Query = sortSegments(u.Query, "&")
	u.Params = sortSegments(u.Params, ";")
	return u
}

// Defrag returns a copy without the fragment.
func (u URL) Defrag() URL {
	u.Fragment = ""
	return u
}

// Deuserinfo returns a copy without the userinfo.
func (u URL) Deuserinfo() URL {
	u.Userinfo = ""
	return u
}

// Deparam returns a copy with every query and params segment whose
// name matches one of the given names removed. Name matching is
// case-insensitive; values are not inspected.
func (u URL) Deparam(names ...string) URL {
	lowered := make(map[string]struct{}, len(names))
	for _, n := range names {
		lowered[strings.ToLower(n)] = struct{}{}
	}
	return u.FilterParams(func(name, _ string) bool {
		_, ok := lowered[strings.ToLower(name)]
		return ok
	})
}

// FilterParams returns a copy with every query and params segment for
// which drop(name, value) is true removed. The name is the segment up
// to the first "="; the value is empty when there is no "=". Surviving
// segments keep their input order.
func (u URL) FilterParams(drop func(name, value string) bool) URL {
	u.Query = filterSegments(u.Query, "&", drop)
	u.Params = filterSegments(u.Params, ";", drop)
	return u
}

// Abspath returns a copy with "."/".."/redundant-slash segments
// collapsed out of the path. ".." at the root is absorbed rather than
// erroring, and a trailing "." or ".." leaves a trailing slash since
// the result names a directory.
func (u URL) Abspath() URL {
	path := collapseRuns(u.Path, '/')
	var out []string
	directory := false
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "..":
			// Never pop the leading root marker: /a/../../b is /b.
			if n := len(out); n > 0 && out[n-1] != "" {
				out = out[:n-1]
			}
			directory = true
		case ".":
			directory = true
		default:
			out = append(out, part)
			directory = false
		}
	}
	joined := strings.Join(out, "/")
	if directory {
		joined += "/"
	}
	u.Path = joined
	return u
}

// Sanitize is shorthand for Abspath followed by Escape.
func (u URL) Sanitize() URL {
	return u.Abspath().Escape()
}

// RemoveDefaultPort returns a copy without the port when it equals the
// scheme's default.
func (u URL) RemoveDefaultPort() URL {
	if u.Port != 0 && u.Port == defaultPorts[u.Scheme] {
		u.Port = 0
	}
	return u
}

// Lower returns a copy with the host lowercased. Parse already
// lowercases; this covers values built directly through New.
func (u URL) Lower() URL {
	u.Host = strings.ToLower(u.Host)
	return u
}

// Relative resolves ref against u and parses the result.
func (u URL) Relative(ref string) (URL, error) {
	base, err := url.Parse(u.String())
	if err != nil {
		return URL{}, &ParseError{Raw: u.String(), Err: err}
	}
	target, err := url.Parse(ref)
	if err != nil {
		return URL{}, &ParseError{Raw: ref, Err: err}
	}
	return Parse(base.ResolveReference(target).String())
}

// Punycode returns a copy with the host converted to its IDNA ASCII
// form. Hosts that do not convert are left untouched.
func (u URL) Punycode() URL {
	if u.Host == "" {
		return u
	}
	if ascii, err := idna.Lookup.ToASCII(u.Host); err == nil && ascii != "" {
		u.Host = ascii
	}
	return u
}

// Unpunycode returns a copy with an IDNA ASCII host converted back to
// its Unicode form. Hosts that do not convert are left untouched.
func (u URL) Unpunycode() URL {
	if u.Host == "" {
		return u
	}
	if unicode, err := idna.Lookup.ToUnicode(u.Host); err == nil && unicode != "" {
		u.Host = unicode
	}
	return u
}

func sortSegments(s, delim string) string {
	parts := strings.Split(s, delim)
	sort.Strings(parts)
	return strings.Join(parts, delim)
}

func filterSegments(s, delim string, drop func(name, value string) bool) string {
	if s == "" {
		return ""
	}
	var kept []string
	for _, part := range strings.Split(s, delim) {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		if drop(name, value) {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, delim)
}

func collapseRuns(s string, c byte) string {
	d := string(c)
	for strings.Contains(s, d+d) {
		s = strings.ReplaceAll(s, d+d, d)
	}
	return s
}
