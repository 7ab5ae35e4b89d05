// Package device resolves a stable device fingerprint for each request.
package device

import (
	"net/http"

	"warden/pkg/requestcontext"
)

// HeaderName lets native clients that cannot hold cookies present a device ID.
const HeaderName = "X-Device-ID"

// Config wires the cookie name and the User-Agent fallback.
type Config struct {
	CookieName string
	// Fingerprint derives the session fingerprint from a device ID (may be empty)
	// and the User-Agent.
	Fingerprint func(deviceID, userAgent string) string
}

// Device must run after the metadata middleware, which supplies the User-Agent.
func Device(cfg *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			deviceID := r.Header.Get(HeaderName)
			if cfg.CookieName != "" {
				if cookie, err := r.Cookie(cfg.CookieName); err == nil && cookie.Value != "" {
					deviceID = cookie.Value
				}
			}
			if deviceID != "" {
				ctx = requestcontext.WithDeviceID(ctx, deviceID)
			}
			if cfg.Fingerprint != nil {
				if fp := cfg.Fingerprint(deviceID, requestcontext.UserAgent(ctx)); fp != "" {
					ctx = requestcontext.WithDeviceFingerprint(ctx, fp)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
