// Package httpclient builds HTTP clients for long-lived streaming requests.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// New creates a client suitable for streaming responses, optionally through a proxy.
// Supported proxy schemes are socks5, http and https.
//
// headerTimeout bounds connecting and waiting for response headers only;
// the client has no overall timeout so a response body may stream indefinitely.
func New(proxyURL string, headerTimeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: headerTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ResponseHeaderTimeout: headerTimeout,
		TLSHandshakeTimeout:   headerTimeout,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		switch parsed.Scheme {
		case "socks5", "socks5h":
			dial, err := socks5Dialer(parsed, headerTimeout)
			if err != nil {
				return nil, err
			}
			transport.DialContext = dial
		case "http", "https":
			transport.Proxy = http.ProxyURL(parsed)
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
		}
	}

	return &http.Client{Transport: transport}, nil
}

func socks5Dialer(proxyURL *url.URL, timeout time.Duration) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	forward := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// Redact returns proxyURL with its password masked, for logging.
func Redact(proxyURL string) string {
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.User == nil {
		return proxyURL
	}
	return parsed.Redacted()
}
