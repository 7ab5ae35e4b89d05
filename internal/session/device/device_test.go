package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeMac    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	chromeMac2   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.71 Safari/537.36"
	firefoxLinux = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

func TestFingerprint(t *testing.T) {
	t.Run("device id takes precedence over user agent", func(t *testing.T) {
		assert.Equal(t, Fingerprint("dev-1", chromeMac), Fingerprint("dev-1", firefoxLinux))
		assert.NotEqual(t, Fingerprint("dev-1", chromeMac), Fingerprint("dev-2", chromeMac))
	})

	t.Run("minor browser updates keep the fingerprint", func(t *testing.T) {
		assert.Equal(t, Fingerprint("", chromeMac), Fingerprint("", chromeMac2))
	})

	t.Run("different browsers differ", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("", chromeMac), Fingerprint("", firefoxLinux))
	})

	t.Run("nothing to fingerprint", func(t *testing.T) {
		assert.Empty(t, Fingerprint("", ""))
		assert.Len(t, Fingerprint("", chromeMac), 64)
	})
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "Unknown Device", Signature(""))
	assert.Contains(t, Signature(chromeMac), "Chrome")
	assert.Contains(t, Signature(firefoxLinux), "Firefox")
	assert.NotEqual(t, Signature(chromeMac), Signature(firefoxLinux))
	assert.Equal(t, Signature(chromeMac), Signature(chromeMac2))
}
