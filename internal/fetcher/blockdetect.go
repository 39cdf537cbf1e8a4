package fetcher

import (
	"net/http"
	"strings"
)

// DefaultMinBodyBytes is the body size below which an HTML response is
// treated as a challenge stub rather than a real page.
const DefaultMinBodyBytes = 1000

// Block reasons reported in resilience.BlockedError.
const (
	ReasonCloudflare   = "cloudflare"
	ReasonAkamai       = "akamai"
	ReasonCaptcha      = "captcha"
	ReasonAccessDenied = "access denied"
	ReasonRateLimited  = "too many requests"
	ReasonRobotCheck   = "robot check"
	ReasonUnusual      = "unusual traffic"
	ReasonShortBody    = "short body"
)

var bodyMarkers = []struct {
	needle string
	reason string
}{
	{"captcha", ReasonCaptcha},
	{"px-captcha", ReasonCaptcha},
	{"cf-browser-verification", ReasonCloudflare},
	{"checking your browser", ReasonCloudflare},
	{"access denied", ReasonAccessDenied},
	{"too many requests", ReasonRateLimited},
	{"robot check", ReasonRobotCheck},
	{"are you a robot", ReasonRobotCheck},
	{"verify you are a human", ReasonRobotCheck},
	{"unusual traffic", ReasonUnusual},
}

// DetectBlock classifies a response as an anti-bot block. It returns the
// block reason, or "" when the response looks like real content. minBody <= 0
// disables the short-body check.
func DetectBlock(statusCode int, header http.Header, body []byte, minBody int) string {
	if statusCode == http.StatusForbidden || statusCode == http.StatusTooManyRequests {
		if header.Get("cf-ray") != "" || header.Get("cf-mitigated") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return ReasonCloudflare
		}
		if strings.Contains(strings.ToLower(header.Get("server")), "akamai") ||
			header.Get("akamai-grn") != "" || header.Get("x-akamai-transformed") != "" {
			return ReasonAkamai
		}
	}

	if reason := DetectBlockHTML(string(body)); reason != "" {
		return reason
	}

	if minBody > 0 && len(body) < minBody {
		return ReasonShortBody
	}
	return ""
}

// DetectBlockHTML looks for challenge page markers in rendered or fetched HTML.
func DetectBlockHTML(html string) string {
	lower := strings.ToLower(html)
	for _, m := range bodyMarkers {
		if strings.Contains(lower, m.needle) {
			return m.reason
		}
	}
	return ""
}
