package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Class groups fetch failures by how a caller should react to them.
type Class int

const (
	ClassNone      Class = iota // no error
	ClassPermanent              // retrying cannot help
	ClassTransient              // network or server hiccup, retry with backoff
	ClassBlocked                // anti-bot page, retry with a new fingerprint
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassBlocked:
		return "blocked"
	default:
		return "permanent"
	}
}

// TransientError marks a failure as safe to retry. StatusCode is zero for
// transport errors.
type TransientError struct {
	Err        error
	StatusCode int
}

// NewTransientError wraps err as retryable.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// BlockedError reports that a retailer served a bot challenge instead of a
// product page.
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked (%s): %s", e.Reason, e.URL)
}

// FetchError is the final error for a URL after the retry budget is spent.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var retryableStatus = map[int]bool{
	408: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Lower-cased fragments of transport errors that surface without a typed
// cause, usually from TLS or HTTP/2 internals.
var transientFragments = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
	"client.timeout exceeded",
}

// Classify reports how err should be handled. A block anywhere in the chain
// wins over a transient cause.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var be *BlockedError
	if errors.As(err, &be) {
		return ClassBlocked
	}
	if isTransientCause(err) {
		return ClassTransient
	}
	return ClassPermanent
}

func isTransientCause(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range transientFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err carries a retryable network or server cause.
func IsTransient(err error) bool {
	return err != nil && isTransientCause(err)
}

// IsBlocked reports whether err wraps a BlockedError.
func IsBlocked(err error) bool {
	return Classify(err) == ClassBlocked
}

// IsRetryableFetch is the retry predicate for page fetches. A block is final
// for that URL; the adapter moves on to its next query variant instead.
func IsRetryableFetch(err error) bool {
	return Classify(err) == ClassTransient
}

// IsTransientHTTPStatus reports whether a response status is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	return retryableStatus[statusCode]
}
