package urlnorm

import "testing"

func TestAbspath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/a/b/../c", "/a/c"},
		{"/a/../../b", "/b"},
		{"/a/./b/", "/a/b/"},
		{"/a//b", "/a/b"},
		{"/a/b/..", "/a/"},
		{"/a/b/.", "/a/b/"},
		{"/..", "/"},
		{"/../../../", "/"},
		{"/.", "/"},
		{"a/b/../c", "a/c"},
		{"a/..", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u := New("http", "example.com", 0, tt.in, "", "", "", "")
			got := u.Abspath()
			if got.Path != tt.want {
				t.Fatalf("Abspath(%q) = %q, want %q", tt.in, got.Path, tt.want)
			}
			if again := got.Abspath(); again.Path != got.Path {
				t.Fatalf("Abspath not idempotent: %q then %q", got.Path, again.Path)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	u := New("http", "example.com", 0, "/a", "z=1;a=2", "b=2&a=1", "", "")
	got := u.Canonical()
	if got.Query != "a=1&b=2" {
		t.Fatalf("Canonical query = %q, want %q", got.Query, "a=1&b=2")
	}
	if got.Params != "a=2;z=1" {
		t.Fatalf("Canonical params = %q, want %q", got.Params, "a=2;z=1")
	}
	if u.Query != "b=2&a=1" {
		t.Fatalf("Canonical mutated its receiver: %q", u.Query)
	}
	if again := got.Canonical(); again != got {
		t.Fatalf("Canonical not idempotent")
	}
}

func TestCanonicalKeepsDuplicates(t *testing.T) {
	u := New("http", "example.com", 0, "/", "", "a=2&a=1&a=2", "", "")
	if got := u.Canonical().Query; got != "a=1&a=2&a=2" {
		t.Fatalf("Canonical query = %q, want %q", got, "a=1&a=2&a=2")
	}
}

func TestDefragDeuserinfo(t *testing.T) {
	u, err := Parse("http://user@example.com/a#frag")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := u.Defrag(); got.Fragment != "" || got.Userinfo != "user" {
		t.Fatalf("Defrag = %+v", got)
	}
	if got := u.Deuserinfo(); got.Userinfo != "" || got.Fragment != "frag" {
		t.Fatalf("Deuserinfo = %+v", got)
	}
	if got := u.Defrag().Defrag(); got.Fragment != "" {
		t.Fatalf("Defrag not idempotent")
	}
}

func TestDeparam(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		params     string
		names      []string
		wantQuery  string
		wantParams string
	}{
		{
			name:      "removes named parameter",
			query:     "a=1&b=2",
			names:     []string{"a"},
			wantQuery: "b=2",
		},
		{
			name:      "case insensitive names",
			query:     "a=1&b=2",
			names:     []string{"A"},
			wantQuery: "b=2",
		},
		{
			name:      "survivor order preserved",
			query:     "c=3&a=1&b=2",
			names:     []string{"a"},
			wantQuery: "c=3&b=2",
		},
		{
			name:       "params segments removed too",
			query:      "a=1",
			params:     "a=x;b=y",
			names:      []string{"a"},
			wantQuery:  "",
			wantParams: "b=y",
		},
		{
			name:      "value case untouched",
			query:     "a=UPPER&b=2",
			names:     []string{"b"},
			wantQuery: "a=UPPER",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := New("http", "example.com", 0, "/", tt.params, tt.query, "", "")
			got := u.Deparam(tt.names...)
			if got.Query != tt.wantQuery {
				t.Fatalf("Deparam query = %q, want %q", got.Query, tt.wantQuery)
			}
			if got.Params != tt.wantParams {
				t.Fatalf("Deparam params = %q, want %q", got.Params, tt.wantParams)
			}
		})
	}
}

func TestFilterParams(t *testing.T) {
	u := New("http", "example.com", 0, "/", "", "a=1&b=&c=3&flag", "", "")
	got := u.FilterParams(func(name, value string) bool {
		return value == ""
	})
	if got.Query != "a=1&c=3" {
		t.Fatalf("FilterParams query = %q, want %q", got.Query, "a=1&c=3")
	}
}

func TestRemoveDefaultPort(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"http default removed", "http://example.com:80/", 0},
		{"https default removed", "https://example.com:443/", 0},
		{"non default kept", "http://example.com:8080/", 8080},
		{"https port on http kept", "http://example.com:443/", 443},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got := u.RemoveDefaultPort(); got.Port != tt.want {
				t.Fatalf("RemoveDefaultPort port = %d, want %d", got.Port, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	u := New("http", "example.com", 0, "/a//b/../c d", "", "", "", "")
	got := u.Sanitize()
	if got.Path != "/a/c%20d" {
		t.Fatalf("Sanitize path = %q, want %q", got.Path, "/a/c%20d")
	}
}

func TestLower(t *testing.T) {
	u := New("http", "Example.COM", 0, "/", "", "", "", "")
	if got := u.Lower(); got.Host != "example.com" {
		t.Fatalf("Lower host = %q", got.Host)
	}
}

func TestRelative(t *testing.T) {
	base, err := Parse("http://example.com/a/b/c")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tests := []struct {
		ref  string
		want string
	}{
		{"d", "http://example.com/a/b/d"},
		{"../d", "http://example.com/a/d"},
		{"/d", "http://example.com/d"},
		{"//other.example/x", "http://other.example/x"},
		{"https://other.example/x", "https://other.example/x"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := base.Relative(tt.ref)
			if err != nil {
				t.Fatalf("Relative(%q): %v", tt.ref, err)
			}
			if got.String() != tt.want {
				t.Fatalf("Relative(%q) = %q, want %q", tt.ref, got.String(), tt.want)
			}
		})
	}
}

func TestPunycode(t *testing.T) {
	u := New("http", "bücher.example", 0, "/", "", "", "", "")
	ascii := u.Punycode()
	if ascii.Host != "xn--bcher-kva.example" {
		t.Fatalf("Punycode host = %q", ascii.Host)
	}
	back := ascii.Unpunycode()
	if back.Host != "bücher.example" {
		t.Fatalf("Unpunycode host = %q", back.Host)
	}
	plain := New("http", "example.com", 0, "/", "", "", "", "")
	if got := plain.Punycode(); got.Host != "example.com" {
		t.Fatalf("Punycode changed ascii host: %q", got.Host)
	}
}
