package failure

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// Classify turns an arbitrary error into a classified error.
//
// An error that is already classified is returned unchanged. Otherwise the
// kind is inferred from the cause: transport failures become NetworkError,
// 401/403 become PermissionError, 429/5xx become NetworkError, context
// cancellation becomes a non-recoverable ResourceError. Anything else is
// classified as fallback with the given recoverable flag.
func Classify(component, operation string, err error, fallback Kind, recoverable bool) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		return fe
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindResource, component, operation, err, false).
			WithDetail(DetailCancelled, true)
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		switch {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return Wrap(KindPermission, component, operation, err, false).
				WithDetail(DetailStatusCode, code)
		case code == http.StatusTooManyRequests || code >= 500:
			return Wrap(KindNetwork, component, operation, err, true).
				WithDetail(DetailStatusCode, code)
		case code > 0:
			return Wrap(fallback, component, operation, err, recoverable).
				WithDetail(DetailStatusCode, code)
		}
	}

	if isTransportError(err) {
		return Wrap(KindNetwork, component, operation, err, true)
	}

	return Wrap(fallback, component, operation, err, recoverable)
}

func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}
