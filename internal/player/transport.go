package player

import (
	"net/http"
)

// allowedHeaders defines the HTTP headers permitted to pass through to the SoundCloud API.
var allowedHeaders = map[string]bool{
	"Accept":            true,
	"Accept-Encoding":   true,
	"Accept-Language":   true,
	"Range":             true,
	"If-None-Match":     true,
	"If-Modified-Since": true,

	// W3C Trace Context for distributed tracing correlation.
	"Traceparent": true,
	"Tracestate":  true,
}

// headerFilterTransport is an http.RoundTripper forwarding only allowlisted
// client headers. Authorization is added afterwards by oauth2.Transport.
type headerFilterTransport struct {
	Base http.RoundTripper
}

// Compile-time check that headerFilterTransport implements http.RoundTripper.
var _ http.RoundTripper = (*headerFilterTransport)(nil)

// RoundTrip implements http.RoundTripper interface.
func (t *headerFilterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	newReq := req.Clone(req.Context())

	// Client cookies, credentials and custom headers never reach SoundCloud.
	originalHeaders := newReq.Header
	newReq.Header = make(http.Header)
	for key, values := range originalHeaders {
		if allowedHeaders[key] {
			newReq.Header[key] = values
		}
	}

	if newReq.Header.Get("Accept") == "" {
		newReq.Header.Set("Accept", "application/json; charset=utf-8")
	}

	return base.RoundTrip(newReq)
}
