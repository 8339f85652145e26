package httpclient

import (
	"net/http"
	"time"
)

// sharedTransport keeps one idle pool for the LLM providers, Qdrant and the
// upload backend.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        32,
	MaxIdleConnsPerHost: 8,
	IdleConnTimeout:     90 * time.Second,
}

// NewPooledClient returns a client with its own timeout on the shared transport.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}
