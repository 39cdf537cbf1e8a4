package fetcher

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	long := strings.Repeat("x", 1200)
	tests := []struct {
		name    string
		status  int
		header  http.Header
		body    string
		minBody int
		want    string
	}{
		{"real page", 200, http.Header{}, long, DefaultMinBodyBytes, ""},
		{"captcha", 200, http.Header{}, "Enter the CAPTCHA " + long, DefaultMinBodyBytes, ReasonCaptcha},
		{"access denied", 200, http.Header{}, "<h1>Access Denied</h1>" + long, DefaultMinBodyBytes, ReasonAccessDenied},
		{"robot check", 200, http.Header{}, "<title>Robot Check</title>" + long, DefaultMinBodyBytes, ReasonRobotCheck},
		{"unusual traffic", 200, http.Header{}, "We detected unusual traffic " + long, DefaultMinBodyBytes, ReasonUnusual},
		{"short body", 200, http.Header{}, "<html></html>", DefaultMinBodyBytes, ReasonShortBody},
		{"short body check disabled", 200, http.Header{}, `{"ok":true}`, 0, ""},
		{"cloudflare 403", 403, http.Header{"Cf-Ray": []string{"abc"}}, "", 0, ReasonCloudflare},
		{"cloudflare server 429", 429, http.Header{"Server": []string{"cloudflare"}}, "", 0, ReasonCloudflare},
		{"akamai 403", 403, http.Header{"Server": []string{"AkamaiGHost"}}, "", 0, ReasonAkamai},
		{"plain 403", 403, http.Header{}, "", 0, ""},
		{"429 body", 429, http.Header{}, "Too Many Requests", 0, ReasonRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectBlock(tt.status, tt.header, []byte(tt.body), tt.minBody))
		})
	}
}

func TestDetectBlockHTML(t *testing.T) {
	assert.Equal(t, ReasonCloudflare, DetectBlockHTML("<div id=\"cf-browser-verification\"></div>"))
	assert.Equal(t, ReasonRobotCheck, DetectBlockHTML("Are you a robot?"))
	assert.Equal(t, "", DetectBlockHTML("<div class=\"product-tile\">Huggies</div>"))
}
