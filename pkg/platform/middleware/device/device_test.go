package device

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"warden/pkg/requestcontext"
)

func TestDevice(t *testing.T) {
	cfg := &Config{
		CookieName: "__Host-device",
		Fingerprint: func(deviceID, userAgent string) string {
			if deviceID != "" {
				return "id:" + deviceID
			}
			return "ua:" + userAgent
		},
	}

	run := func(req *http.Request) (string, string) {
		var deviceID, fp string
		h := Device(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID = requestcontext.DeviceID(r.Context())
			fp = requestcontext.DeviceFingerprint(r.Context())
		}))
		h.ServeHTTP(httptest.NewRecorder(), req)
		return deviceID, fp
	}

	t.Run("cookie wins over header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "__Host-device", Value: "cookie-1"})
		req.Header.Set(HeaderName, "header-1")
		id, fp := run(req)
		assert.Equal(t, "cookie-1", id)
		assert.Equal(t, "id:cookie-1", fp)
	})

	t.Run("header used when no cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderName, "header-1")
		id, _ := run(req)
		assert.Equal(t, "header-1", id)
	})

	t.Run("falls back to user agent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "192.0.2.1", "Mozilla/5.0"))
		id, fp := run(req)
		assert.Empty(t, id)
		assert.Equal(t, "ua:Mozilla/5.0", fp)
	})
}
