package ports

import "errors"

// Errors shared between adapters and the services that consume them.
var (
	ErrUpstreamTimeout     = errors.New("upstream: timeout")
	ErrUpstreamUnavailable = errors.New("upstream: unavailable")
	ErrMalformedResponse   = errors.New("upstream: malformed response")
)
