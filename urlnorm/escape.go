package urlnorm

import "strings"

// Safe character sets per RFC 3986: unreserved plus sub-delims plus
// the extra characters each field may carry unescaped.
const (
	alphanum   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	unreserved = alphanum + "-._~"
	subDelims  = "!$&'()*+,;="
)

var (
	pathSafe     = safeSet(unreserved + subDelims + ":@/")
	querySafe    = safeSet(unreserved + subDelims + ":@/?")
	userinfoSafe = safeSet(unreserved + subDelims + ":")
)

const upperhex = "0123456789ABCDEF"

// Escape returns a copy with the path, params, query, and userinfo
// re-encoded canonically: each field is fully percent-decoded and then
// re-encoded against its safe set, so inconsistent or double escaping
// collapses into one form.
func (u URL) Escape() URL {
	u.Path = escape(unescape(u.Path), &pathSafe)
	u.Query = escape(unescape(u.Query), &querySafe)
	u.Params = escape(unescape(u.Params), &querySafe)
	if u.Userinfo != "" {
		u.Userinfo = escape(unescape(u.Userinfo), &userinfoSafe)
	}
	return u
}

// Unescape returns a copy with the path fully percent-decoded.
func (u URL) Unescape() URL {
	u.Path = unescape(u.Path)
	return u
}

// unescape percent-decodes s. "%" followed by two hex digits is one
// decode unit; any other character, including a dangling "%", passes
// through literally.
func unescape(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// escape percent-encodes every byte of s outside the safe set.
func escape(s string, safe *[256]bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if safe[c] {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

// validEscapes reports whether every "%" in s begins a well-formed
// two-digit hex escape.
func validEscapes(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			continue
		}
		if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			return false
		}
		i += 2
	}
	return true
}

func safeSet(chars string) (set [256]bool) {
	for i := 0; i < len(chars); i++ {
		set[chars[i]] = true
	}
	return set
}

func isHex(c byte) bool {
	switch {
	case '0' <= c && c <= '9':
		return true
	case 'a' <= c && c <= 'f':
		return true
	case 'A' <= c && c <= 'F':
		return true
	}
	return false
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
