package pool

import "errors"

// Client construction errors.
// These are setup errors: they are reported before any request is sent.
var (
	// ErrInvalidProxyURL is returned when the proxy URL cannot be parsed
	// or has no host.
	ErrInvalidProxyURL = errors.New("invalid proxy URL")

	// ErrUnsupportedProxyScheme is returned for proxy schemes other than
	// http, https, socks5 and socks5h.
	ErrUnsupportedProxyScheme = errors.New("unsupported proxy scheme: expected http, https, socks5 or socks5h")
)
