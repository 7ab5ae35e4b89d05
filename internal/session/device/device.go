// Package device derives the fingerprint sessions are keyed by and the
// browser/OS signature the anomaly detector groups on.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// Fingerprint returns a stable hex key for the client. A device ID issued
// by the server wins; otherwise the key is derived from browser family, major
// version, OS and form factor. The IP address is left out: it is too volatile.
func Fingerprint(deviceID, userAgent string) string {
	if deviceID = strings.TrimSpace(deviceID); deviceID != "" {
		return digest("device|" + deviceID)
	}
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	browser, version := ua.Browser()
	major, _, _ := strings.Cut(version, ".")
	if major == "" {
		major = "unknown"
	}
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}
	return digest(fmt.Sprintf("ua|%s|%s|%s|%s", normalize(browser), major, normalize(ua.OS()), platform))
}

// Signature renders a user agent as "Browser on OS", e.g. "Chrome on macOS".
func Signature(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OS()
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
