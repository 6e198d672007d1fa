// Package urlnorm canonicalizes and compares URLs.
//
// A URL is parsed into structural components and carried as a plain
// value. Every transform takes the value receiver and returns a new
// URL, so chains like
//
//	u.Canonical().Defrag().Abspath().Escape()
//
// never mutate the original. Equiv applies that exact chain to both
// operands and compares the results, treating an explicit default port
// (80 for http, 443 for https) as equal to an absent one.
//
// The pipeline favors best-effort normalization over strict rejection:
// out-of-range ports are dropped, malformed percent escapes pass
// through literally, and ".." past the root is absorbed. ParseWith
// offers a strict mode that turns those into errors at the parse
// boundary instead.
package urlnorm

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// defaultPorts holds the only schemes with an implicit default port.
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// URL holds the parsed components of a URL. Port 0 means no explicit
// port, empty Fragment and Userinfo mean absent. Path is never empty;
// an empty parsed path is stored as "/". Params and Query never carry
// leading, trailing, or doubled delimiters.
type URL struct {
	Scheme   string
	Host     string
	Port     int
	Path     string
	Params   string
	Query    string
	Fragment string
	Userinfo string
}

// ParseError reports input that the underlying URI parser could not
// tokenize, or a strict-mode violation.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse url %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Options selects strict parsing behavior. The zero value is the
// lenient default: invalid ports coerce to absent and malformed
// percent escapes are kept literally.
type Options struct {
	// StrictPort rejects ports outside 1..65535 instead of dropping them.
	StrictPort bool
	// StrictEscape rejects malformed %XX sequences in the path, params,
	// query, fragment, and userinfo instead of passing them through.
	StrictEscape bool
}

// Parse splits raw into components and returns the normalized-at-construction
// URL value. Splitting is delegated to net/url; anything it rejects comes
// back as a *ParseError.
func Parse(raw string) (URL, error) {
	return ParseWith(raw, Options{})
}

// ParseWith is Parse with an explicit leniency policy.
func ParseWith(raw string, opts Options) (URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return URL{}, &ParseError{Raw: raw, Err: err}
	}

	port := 0
	if s := parsed.Port(); s != "" {
		n, err := strconv.Atoi(s)
		if err == nil && n >= 1 && n <= 65535 {
			port = n
		} else if opts.StrictPort {
			return URL{}, &ParseError{Raw: raw, Err: fmt.Errorf("port %q out of range", s)}
		}
	}

	userinfo := ""
	if parsed.User != nil {
		userinfo = parsed.User.Username()
		if password, ok := parsed.User.Password(); ok {
			userinfo += ":" + password
		}
	}

	path, params := splitParams(parsed.EscapedPath())
	u := New(
		strings.ToLower(parsed.Scheme),
		strings.ToLower(parsed.Hostname()),
		port,
		path,
		params,
		parsed.RawQuery,
		parsed.EscapedFragment(),
		userinfo,
	)

	if opts.StrictEscape {
		for _, field := range []string{u.Path, u.Params, u.Query, u.Fragment, u.Userinfo} {
			if !validEscapes(field) {
				return URL{}, &ParseError{Raw: raw, Err: fmt.Errorf("malformed percent escape in %q", field)}
			}
		}
	}
	return u, nil
}

// New builds a URL from already-split components, applying the
// construction-time coercions: empty path becomes "/", out-of-range
// ports become absent, a leading "?" is stripped from the query, and
// delimiter runs in params and query are collapsed and trimmed.
func New(scheme, host string, port int, path, params, query, fragment, userinfo string) URL {
	if path == "" {
		path = "/"
	}
	if port < 0 || port > 65535 {
		port = 0
	}
	return URL{
		Scheme:   scheme,
		Host:     host,
		Port:     port,
		Path:     path,
		Params:   trimDelimiters(params, ';'),
		Query:    trimDelimiters(strings.TrimLeft(query, "?"), '&'),
		Fragment: fragment,
		Userinfo: userinfo,
	}
}

// splitParams separates RFC 3986 path parameters from the path: the
// params start at the first ";" inside the last path segment.
func splitParams(path string) (string, string) {
	i := -1
	if slash := strings.LastIndexByte(path, '/'); slash >= 0 {
		if semi := strings.IndexByte(path[slash:], ';'); semi >= 0 {
			i = slash + semi
		}
	} else {
		i = strings.IndexByte(path, ';')
	}
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i+1:]
}

// trimDelimiters collapses runs of delim and strips it from both ends.
func trimDelimiters(s string, delim byte) string {
	return strings.Trim(collapseRuns(s, delim), string(delim))
}

// Hostname returns the host component, or "" for relative URLs.
func (u URL) Hostname() string { return u.Host }

// IsAbsolute reports whether the URL carries a host.
func (u URL) IsAbsolute() bool { return u.Host != "" }

// Equal reports exact component equality. It applies no normalization;
// use Equiv for the canonicalizing comparison.
func (u URL) Equal(other URL) bool { return u == other }

// String reassembles the components into RFC 3986 textual form. It
// reflects whatever normalization has been applied so far and does not
// re-validate.
func (u URL) String() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteByte(':')
	}
	if u.Host != "" || u.Userinfo != "" || u.Port != 0 {
		b.WriteString("//")
		if u.Userinfo != "" {
			b.WriteString(u.Userinfo)
			b.WriteByte('@')
		}
		if strings.Contains(u.Host, ":") {
			b.WriteByte('[')
			b.WriteString(u.Host)
			b.WriteByte(']')
		} else {
			b.WriteString(u.Host)
		}
		if u.Port != 0 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(u.Port))
		}
		if !strings.HasPrefix(u.Path, "/") {
			b.WriteByte('/')
		}
	}
	b.WriteString(u.Path)
	if u.Params != "" {
		b.WriteByte(';')
		b.WriteString(u.Params)
	}
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}
