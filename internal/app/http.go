package app

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// newHighThroughputHTTPClient returns an HTTP client tuned for parallel
// batch conversions. Redirects are left to the fetch client's policy; the
// overall timeout is a backstop behind each request's own deadline. With
// sslVerify false, certificate checks are skipped for self-signed hosts.
func newHighThroughputHTTPClient(timeout time.Duration, sslVerify bool) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          0,   // no global limit
		MaxIdleConnsPerHost:   256, // one host often serves a whole batch
		MaxConnsPerHost:       0,   // unlimited
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !sslVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
