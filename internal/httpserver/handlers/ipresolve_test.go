package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidShareHash(t *testing.T) {
	assert.True(t, validShareHash("abc123_-XYZ"))
	assert.False(t, validShareHash(""))
	assert.False(t, validShareHash("has space"))
	assert.False(t, validShareHash("slash/in/hash"))
}

func TestValidSharePath(t *testing.T) {
	assert.True(t, validSharePath("a/b/c.jpg"))
	assert.False(t, validSharePath(""))
	assert.False(t, validSharePath("/leading"))
	assert.False(t, validSharePath("a/../b"))
	assert.False(t, validSharePath(`a\b`))
}

func TestResolveClientIP_PrefersCFConnectingIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("CF-Connecting-IP", "1.2.3.4")
	r.Header.Set("X-Forwarded-For", "9.9.9.9")
	r.RemoteAddr = "10.0.0.1:1234"

	assert.Equal(t, "1.2.3.4", resolveClientIP(r))
}

func TestResolveClientIP_FallsBackToRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"

	assert.Equal(t, "10.0.0.1", resolveClientIP(r))
}

func TestAnonymizeIP(t *testing.T) {
	assert.Equal(t, "1.2.3.0/24", anonymizeIP("1.2.3.4"))
	assert.Equal(t, "2001:db8::/64", anonymizeIP("2001:db8::1"))
}

func TestEventIP_RespectsMode(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "1.2.3.4:9999"

	assert.Equal(t, "", eventIP(r, "off"))
	assert.Equal(t, "1.2.3.0/24", eventIP(r, "anonymized"))
	assert.Equal(t, "1.2.3.4", eventIP(r, "full"))
}

func TestResolveAuthToken_Precedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Auth", "from-header")
	r.Header.Set("Authorization", "Bearer from-bearer")
	assert.Equal(t, "from-header", resolveAuthToken(r))

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.Header.Set("Authorization", "Bearer from-bearer")
	assert.Equal(t, "from-bearer", resolveAuthToken(r2))
}
