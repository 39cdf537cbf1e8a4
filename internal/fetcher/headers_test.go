package fetcher

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultProfiles_AreComplete(t *testing.T) {
	for _, p := range DefaultProfiles() {
		assert.NotEmpty(t, p.Headers["User-Agent"], p.Name)
		assert.NotEmpty(t, p.Headers["Accept"], p.Name)
		assert.Contains(t, p.Headers["Accept-Language"], "en-CA", p.Name)
	}
}

func TestHeaderProfile_Apply(t *testing.T) {
	h := http.Header{}
	DefaultProfiles()[0].apply(h)
	assert.Equal(t, DefaultProfiles()[0].Headers["User-Agent"], h.Get("User-Agent"))
}

func TestRandomUserAgent(t *testing.T) {
	assert.Contains(t, RandomUserAgent(), "Mozilla/5.0")
}
