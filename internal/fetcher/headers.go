package fetcher

import (
	"math/rand/v2"
	"net/http"
)

// HeaderProfile is a coherent set of browser request headers. Mixing a
// Firefox User-Agent with Chrome client hints is an easy bot signal, so
// profiles are rotated as a unit.
type HeaderProfile struct {
	Name    string
	Headers map[string]string
}

var defaultProfiles = []HeaderProfile{
	{
		Name:    "chrome-windows",
		Headers: map[string]string{
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-CA,en;q=0.9,fr-CA;q=0.8",
			"Sec-CH-UA":                 `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
			"Sec-CH-UA-Mobile":          "?0",
			"Sec-CH-UA-Platform":        `"Windows"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	},
	{
		Name:    "chrome-mac",
		Headers: map[string]string{
			"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-CA,en-US;q=0.9,en;q=0.8",
			"Sec-CH-UA":                 `"Google Chrome";v="123", "Not:A-Brand";v="8", "Chromium";v="123"`,
			"Sec-CH-UA-Mobile":          "?0",
			"Sec-CH-UA-Platform":        `"macOS"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	},
	{
		Name:    "edge-windows",
		Headers: map[string]string{
			"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
			"Accept":             "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language":    "en-CA,en;q=0.9",
			"Sec-CH-UA":          `"Chromium";v="124", "Microsoft Edge";v="124", "Not-A.Brand";v="99"`,
			"Sec-CH-UA-Mobile":   "?0",
			"Sec-CH-UA-Platform": `"Windows"`,
			"Sec-Fetch-Dest":     "document",
			"Sec-Fetch-Mode":     "navigate",
			"Sec-Fetch-Site":     "none",
			"Sec-Fetch-User":     "?1",
		},
	},
	{
		Name:    "firefox-windows",
		Headers: map[string]string{
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language":           "en-CA,en-US;q=0.7,en;q=0.3",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	},
	{
		Name:    "safari-mac",
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-CA,en;q=0.9",
			"Sec-Fetch-Dest":  "document",
			"Sec-Fetch-Mode":  "navigate",
			"Sec-Fetch-Site":  "none",
		},
	},
}

// DefaultProfiles returns a copy of the built-in header profiles.
func DefaultProfiles() []HeaderProfile {
	out := make([]HeaderProfile, len(defaultProfiles))
	copy(out, defaultProfiles)
	return out
}

// RandomUserAgent returns the User-Agent of a random built-in profile.
func RandomUserAgent() string {
	return defaultProfiles[rand.IntN(len(defaultProfiles))].Headers["User-Agent"]
}

func pickProfile(profiles []HeaderProfile) HeaderProfile {
	return profiles[rand.IntN(len(profiles))]
}

func (p HeaderProfile) apply(h http.Header) {
	for k, v := range p.Headers {
		h.Set(k, v)
	}
}
