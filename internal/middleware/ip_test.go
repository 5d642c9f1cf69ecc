package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func requestFrom(t *testing.T, remote string, headers map[string]string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestProxyAwareClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:   "no headers falls back to peer",
			remote: "198.51.100.7:52002",
			want:   "198.51.100.7",
		},
		{
			name:    "cloudflare header wins over peer",
			remote:  "10.1.2.3:443",
			headers: map[string]string{"CF-Connecting-IP": "203.0.113.9"},
			want:    "203.0.113.9",
		},
		{
			name:   "cloudflare header outranks forwarded-for",
			remote: "10.1.2.3:443",
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.9",
				"X-Forwarded-For":  "198.51.100.20, 10.0.0.2",
			},
			want: "203.0.113.9",
		},
		{
			name:    "forwarded-for chain yields the first hop",
			remote:  "10.1.2.3:443",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.20, 203.0.113.1, 10.0.0.2"},
			want:    "198.51.100.20",
		},
		{
			name:   "garbled higher-ranked header is skipped",
			remote: "10.1.2.3:443",
			headers: map[string]string{
				"CF-Connecting-IP": "not-an-address",
				"X-Real-IP":        "203.0.113.40",
			},
			want: "203.0.113.40",
		},
		{
			name:    "private address in header does not spoof",
			remote:  "198.51.100.7:52002",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.50"},
			want:    "198.51.100.7",
		},
		{
			name:    "ipv6 unique-local in header does not spoof",
			remote:  "198.51.100.7:52002",
			headers: map[string]string{"X-Real-IP": "fd12::1"},
			want:    "198.51.100.7",
		},
		{
			name:    "public ipv6 in header accepted",
			remote:  "10.1.2.3:443",
			headers: map[string]string{"X-Real-IP": "2001:db8::3"},
			want:    "2001:db8::3",
		},
		{
			name:    "padded header values survive trimming",
			remote:  "10.1.2.3:443",
			headers: map[string]string{"X-Forwarded-For": "  203.0.113.9 ,  10.0.0.2 "},
			want:    "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := requestFrom(t, tt.remote, tt.headers)
			if got := proxyAwareClientIP(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDirectClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		remote string
		want   string
	}{
		{"host and port", "198.51.100.7:52002", "198.51.100.7"},
		{"bare host without port", "198.51.100.7", "198.51.100.7"},
		{"ipv6 with port", "[2001:db8::3]:52002", "2001:db8::3"},
		{"whitespace around host", "  198.51.100.7  :  52002  ", "198.51.100.7"},
		{"out-of-range octets", "512.600.1.1:80", ""},
		{"not an address at all", "garbage", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := requestFrom(t, tt.remote, nil)
			if got := directClientIP(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr    string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.255.0.1", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.0.1", true},
		{"203.0.113.9", false},
		{"::1", true},
		{"fd12::1", true},
		{"fe80::1", true},
		{"2001:db8::3", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()

			ip := net.ParseIP(tt.addr)
			if ip == nil {
				t.Fatalf("fixture %q does not parse", tt.addr)
			}
			if got := isPrivateIP(ip); got != tt.private {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.addr, got, tt.private)
			}
		})
	}
}
