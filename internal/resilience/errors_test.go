package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	blocked := &BlockedError{URL: "https://www.walmart.ca/search?q=pampers", Reason: "captcha"}

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"plain", errors.New("parse listing: no price"), ClassPermanent},
		{"transient 503", NewTransientError(errors.New("overloaded"), 503), ClassTransient},
		{"wrapped transient", fmt.Errorf("amazon: %w", NewTransientError(errors.New("slow down"), 429)), ClassTransient},
		{"conn reset", fmt.Errorf("read tcp: %w", syscall.ECONNRESET), ClassTransient},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), ClassTransient},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, ClassTransient},
		{"tls text", errors.New("net/http: TLS handshake timeout"), ClassTransient},
		{"eof text", errors.New("Get \"https://well.ca\": unexpected EOF"), ClassTransient},
		{"blocked", blocked, ClassBlocked},
		{"blocked inside fetch error", &FetchError{URL: blocked.URL, Attempts: 3, Err: blocked}, ClassBlocked},
		{"blocked wins over transient", NewTransientError(blocked, 0), ClassBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "none", ClassNone.String())
	assert.Equal(t, "permanent", ClassPermanent.String())
	assert.Equal(t, "transient", ClassTransient.String())
	assert.Equal(t, "blocked", ClassBlocked.String())
}

func TestIsRetryableFetch(t *testing.T) {
	assert.True(t, IsRetryableFetch(NewTransientError(errors.New("x"), 502)))
	assert.False(t, IsRetryableFetch(&BlockedError{URL: "u", Reason: "access denied"}), "blocked URLs are not hammered")
	assert.False(t, IsRetryableFetch(NewTransientError(&BlockedError{URL: "u", Reason: "captcha"}, 503)))
	assert.False(t, IsRetryableFetch(errors.New("404 not found")))
	assert.False(t, IsRetryableFetch(nil))
}

func TestIsTransient_BlockIsNotTransient(t *testing.T) {
	err := fmt.Errorf("search: %w", &BlockedError{URL: "https://www.costco.ca", Reason: "captcha"})
	assert.True(t, IsBlocked(err))
	assert.False(t, IsTransient(err))
	assert.False(t, IsTransient(nil))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 425, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 409, 422, 501} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransientError_WrapsCause(t *testing.T) {
	cause := errors.New("upstream 503")
	te := NewTransientError(cause, 503)
	assert.ErrorIs(t, te, cause)
	assert.Equal(t, "upstream 503", te.Error())
	assert.Equal(t, 503, te.StatusCode)
}

func TestFetchError_Message(t *testing.T) {
	fe := &FetchError{URL: "https://well.ca", Attempts: 3, Err: &BlockedError{URL: "https://well.ca", Reason: "access denied"}}
	assert.Equal(t, "fetch https://well.ca failed after 3 attempt(s): blocked (access denied): https://well.ca", fe.Error())
}
