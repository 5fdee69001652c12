package pool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultClientTimeout bounds a single request including the body read.
// Artifacts can be tens of megabytes, so this is generous.
const DefaultClientTimeout = 5 * time.Minute

// maxRedirects is the redirect limit for pooled clients.
const maxRedirects = 10

// ClientOptions configures clients built by NewHTTPClientFactory.
type ClientOptions struct {
	// Timeout is the per-request timeout. Zero disables it.
	Timeout time.Duration

	// ProxyURL routes all requests through a proxy.
	// Supported schemes are http, https, socks5 and socks5h. Empty means direct.
	ProxyURL string

	// MaxIdleConnsPerHost is the idle connection cache size per host.
	MaxIdleConnsPerHost int
}

// DefaultClientOptions returns the options used when none are given.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:             DefaultClientTimeout,
		MaxIdleConnsPerHost: 4,
	}
}

// NewHTTPClientFactory validates opts and returns a constructor for pooled
// clients. Every client gets its own transport so that releasing a slot
// keeps its warm connections with it.
func NewHTTPClientFactory(opts ClientOptions) (func() *http.Client, error) {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = DefaultClientOptions().MaxIdleConnsPerHost
	}

	var proxyURL *url.URL
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyURL, RedactURL(opts.ProxyURL))
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxyScheme, u.Scheme)
		}
		proxyURL = u
	}

	// Resolve the SOCKS dialer once so configuration errors surface here.
	if proxyURL != nil && isSOCKS(proxyURL) {
		if _, err := proxy.FromURL(proxyURL, proxy.Direct); err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
	}

	return func() *http.Client {
		return newHTTPClient(opts, proxyURL)
	}, nil
}

// newHTTPClient builds one client. proxyURL has been validated by the caller.
func newHTTPClient(opts ClientOptions, proxyURL *url.URL) *http.Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = DefaultClientOptions().MaxIdleConnsPerHost
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 4,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if proxyURL != nil {
		if isSOCKS(proxyURL) {
			socks, err := proxy.FromURL(proxyURL, dialer)
			if err == nil {
				transport.DialContext = socksDialContext(socks)
			}
		} else {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// socksDialContext adapts a proxy.Dialer to the transport's DialContext.
func socksDialContext(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

func isSOCKS(u *url.URL) bool {
	s := strings.ToLower(u.Scheme)
	return s == "socks5" || s == "socks5h"
}

// RedactURL replaces the password in a URL's user info with "xxxxx".
// Unparseable input is returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
