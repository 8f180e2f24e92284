package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		trusted []string
		want    string
	}{
		{
			name:    "untrusted peer ignores forwarded",
			remote:  "198.51.100.10:1234",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5"},
			trusted: []string{"203.0.113.1"},
			want:    "198.51.100.10",
		},
		{
			name:    "no trusted proxies",
			remote:  "198.51.100.10:1234",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5"},
			want:    "198.51.100.10",
		},
		{
			name:    "right-most untrusted hop",
			remote:  "203.0.113.10:1234",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 203.0.113.11, 192.0.2.20"},
			trusted: []string{"203.0.113.10", "203.0.113.11"},
			want:    "192.0.2.20",
		},
		{
			name:    "all trusted uses left-most",
			remote:  "203.0.113.10:1234",
			headers: map[string]string{"Forwarded": `for=192.0.2.1, for=192.0.2.2`},
			trusted: []string{"203.0.113.10", "192.0.2.1", "192.0.2.2"},
			want:    "192.0.2.1",
		},
		{
			name:    "trusted CIDR",
			remote:  "10.1.2.3:1234",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7"},
			trusted: []string{"10.0.0.0/8"},
			want:    "198.51.100.7",
		},
		{
			name:    "forwarded beats x-forwarded-for",
			remote:  "10.1.2.3:1234",
			headers: map[string]string{"Forwarded": `for="[2001:db8::1]:4711";proto=https`, "X-Forwarded-For": "198.51.100.7"},
			trusted: []string{"10.0.0.0/8"},
			want:    "2001:db8::1",
		},
		{
			name:    "unknown forwarded falls back to peer",
			remote:  "10.1.2.3:1234",
			headers: map[string]string{"Forwarded": "for=unknown"},
			trusted: []string{"10.0.0.0/8"},
			want:    "10.1.2.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got := clientIPFromRequest(req, newProxyMatcher(tt.trusted, nil))
			if got == nil || !got.Equal(net.ParseIP(tt.want)) {
				t.Fatalf("clientIP = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewProxyMatcherSkipsInvalid(t *testing.T) {
	if m := newProxyMatcher([]string{"", "not-an-ip", "10.0.0.0/99"}, nil); m != nil {
		t.Errorf("newProxyMatcher() = %+v, want nil", m)
	}
	m := newProxyMatcher([]string{"bogus", "192.0.2.1"}, nil)
	if !m.IsTrusted(net.ParseIP("192.0.2.1")) || m.IsTrusted(net.ParseIP("192.0.2.2")) {
		t.Error("IsTrusted() mismatch")
	}
}

func TestOriginChecks(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://app.example/live", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	if !SameOriginCheck(req("")) || !SameOriginCheck(req("http://app.example")) {
		t.Error("SameOriginCheck rejected a same-origin request")
	}
	if SameOriginCheck(req("http://evil.example")) {
		t.Error("SameOriginCheck accepted a foreign origin")
	}

	check := AllowOrigins("https://Widgets.Example/")
	if !check(req("https://widgets.example")) {
		t.Error("AllowOrigins rejected a listed origin")
	}
	if check(req("https://other.example")) {
		t.Error("AllowOrigins accepted an unlisted origin")
	}
	if !AllowOrigins("*")(req("https://other.example")) {
		t.Error(`AllowOrigins("*") rejected an origin`)
	}
}
