package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/pkg/requestcontext"
)

func resolve(t *testing.T, m *Middleware, remote string, headers map[string]string) string {
	t.Helper()
	var ip string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return ip
}

func TestClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	trusted := NewMiddleware(&Config{TrustedProxies: proxies})
	untrusted := NewMiddleware(nil)

	t.Run("ignores forwarded headers from untrusted peers", func(t *testing.T) {
		got := resolve(t, untrusted, "198.51.100.4:5555", map[string]string{"X-Forwarded-For": "203.0.113.1"})
		assert.Equal(t, "198.51.100.4", got)
	})

	t.Run("uses first forwarded address from trusted proxy", func(t *testing.T) {
		got := resolve(t, trusted, "10.1.2.3:443", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.1.2.3"})
		assert.Equal(t, "203.0.113.1", got)
	})

	t.Run("falls back to peer when forwarded value is garbage", func(t *testing.T) {
		got := resolve(t, trusted, "10.1.2.3:443", map[string]string{"X-Forwarded-For": "evil"})
		assert.Equal(t, "10.1.2.3", got)
	})

	t.Run("handles bracketed ipv6 peers", func(t *testing.T) {
		got := resolve(t, untrusted, "[2001:db8::1]:8080", nil)
		assert.Equal(t, "2001:db8::1", got)
	})

	t.Run("unparseable peer is unknown", func(t *testing.T) {
		assert.Equal(t, "unknown", resolve(t, untrusted, "pipe", nil))
	})
}

func TestParseTrustedProxies(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"not-a-cidr"})
	assert.Error(t, err)

	got, err := ParseTrustedProxies([]string{" 192.0.2.0/24 "})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}, got)
}
